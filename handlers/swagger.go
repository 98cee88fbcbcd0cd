package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/higai/site-admin/internal/content"
	contenthandler "github.com/higai/site-admin/internal/content/handler"
)

// RegisterSwagger registers the API documentation:
// - GET /swagger/index.html  -> Swagger UI loading the document below
// - GET /swagger/doc.json    -> OpenAPI document
func RegisterSwagger(rg *gin.Engine) {
	doc := openAPI()
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})
	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>site-admin API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

func jsonBody(props gin.H, required ...string) gin.H {
	schema := gin.H{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return gin.H{"content": gin.H{"application/json": gin.H{"schema": schema}}}
}

func str() gin.H { return gin.H{"type": "string"} }

func responses(codes map[string]string) gin.H {
	out := gin.H{}
	for code, desc := range codes {
		out[code] = gin.H{"description": desc}
	}
	return out
}

// fieldSchema maps a form field to its JSON schema.
func fieldSchema(f content.Field) gin.H {
	switch f.Type {
	case content.FieldNumber:
		return gin.H{"type": "integer", "minimum": 1, "maximum": 5}
	case content.FieldSelect:
		return gin.H{"type": "string", "enum": f.Options}
	case content.FieldEmail:
		return gin.H{"type": "string", "format": "email"}
	case content.FieldImage:
		return gin.H{"type": "string", "description": "image URL or data URI"}
	}
	return gin.H{"type": "string", "description": f.Label}
}

func openAPI() gin.H {
	schemas := gin.H{}
	keys := make([]string, 0, 6)
	for _, k := range content.Kinds() {
		r := k.Route()
		props := gin.H{
			"id":          gin.H{"type": "string", "readOnly": true},
			"submittedAt": gin.H{"type": "string", "format": "date-time", "readOnly": true},
		}
		for _, f := range r.Fields {
			props[f.Name] = fieldSchema(f)
		}
		schemas[r.Key] = gin.H{"type": "object", "properties": props}
		keys = append(keys, r.Key)
	}
	kindParam := gin.H{"name": "kind", "in": "path", "required": true, "schema": gin.H{"type": "string", "enum": keys}}
	idParam := gin.H{"name": "id", "in": "path", "required": true, "schema": str()}
	bearer := []gin.H{{"bearerAuth": []string{}}}
	tokensOut := responses(map[string]string{"200": "accessToken, refreshToken, expiresIn, admin", "401": "rejected"})

	paths := gin.H{
		"/auth/login": gin.H{"post": gin.H{
			"summary":     "Sign in with email and password",
			"requestBody": jsonBody(gin.H{"email": str(), "password": str()}, "email", "password"),
			"responses":   tokensOut,
		}},
		"/auth/login/sso": gin.H{"post": gin.H{
			"summary":     "Exchange an identity provider authorization code",
			"requestBody": jsonBody(gin.H{"code": str(), "redirectUri": str()}, "code", "redirectUri"),
			"responses":   tokensOut,
		}},
		"/auth/refresh": gin.H{"post": gin.H{
			"summary":     "Rotate the refresh token and get a new access token",
			"requestBody": jsonBody(gin.H{"refreshToken": str()}, "refreshToken"),
			"responses":   tokensOut,
		}},
		"/auth/logout": gin.H{"post": gin.H{
			"summary":     "End the session and revoke the access token",
			"requestBody": jsonBody(gin.H{"refreshToken": str()}, "refreshToken"),
			"responses":   responses(map[string]string{"200": "logged out"}),
		}},
		"/api/admin/me": gin.H{"get": gin.H{"summary": "Signed-in admin", "security": bearer,
			"responses": responses(map[string]string{"200": "admin", "401": "not signed in"})}},
		"/api/admin/kinds": gin.H{"get": gin.H{"summary": "Navigation entries and form schemas", "security": bearer,
			"responses": responses(map[string]string{"200": "kinds"})}},
		"/api/admin/media": gin.H{"post": gin.H{"summary": "Encode an image as a data URI", "security": bearer,
			"requestBody": gin.H{"content": gin.H{"multipart/form-data": gin.H{"schema": gin.H{"type": "object",
				"properties": gin.H{"file": gin.H{"type": "string", "format": "binary"}}}}}},
			"responses": responses(map[string]string{"200": "dataUri, mime, size", "413": "file too large"})}},
		"/api/admin/content/{kind}": gin.H{
			"parameters": []gin.H{kindParam},
			"get":        gin.H{"summary": "List documents", "security": bearer, "responses": responses(map[string]string{"200": "documents"})},
			"post": gin.H{"summary": "Create a document", "security": bearer,
				"responses": responses(map[string]string{"201": "created", "422": "invalid fields"})},
		},
		"/api/admin/content/{kind}/feed": gin.H{
			"parameters": []gin.H{kindParam},
			"get": gin.H{"summary": "Live document list (text/event-stream)", "security": bearer,
				"responses": responses(map[string]string{"200": "snapshot events"})},
		},
		"/api/admin/content/{kind}/{id}": gin.H{
			"parameters": []gin.H{kindParam, idParam},
			"get":        gin.H{"summary": "Get a document", "security": bearer, "responses": responses(map[string]string{"200": "document", "404": "not found"})},
			"patch": gin.H{"summary": "Update the given fields only", "security": bearer,
				"responses": responses(map[string]string{"200": "document", "404": "not found", "422": "invalid fields"})},
			"delete": gin.H{"summary": "Delete (requires ?confirm=true or " + contenthandler.ConfirmHeader + ")", "security": bearer,
				"responses": responses(map[string]string{"204": "deleted", "428": "confirmation required"})},
		},
		"/api/admin/content/{kind}/{id}/status": gin.H{
			"parameters": []gin.H{kindParam, idParam},
			"post": gin.H{"summary": "Toggle testimonial approval", "security": bearer,
				"responses": responses(map[string]string{"200": "new status", "400": "kind has no status"})},
		},
		"/api/public/{kind}": gin.H{
			"parameters": []gin.H{kindParam},
			"get":        gin.H{"summary": "Published documents, newest first", "responses": responses(map[string]string{"200": "documents", "404": "not public"})},
		},
		"/api/public/{kind}/{id}": gin.H{
			"parameters": []gin.H{kindParam, idParam},
			"get":        gin.H{"summary": "Published document", "responses": responses(map[string]string{"200": "document", "404": "not found"})},
		},
		"/api/public/contact": gin.H{"post": gin.H{"summary": "Contact form",
			"requestBody": jsonBody(gin.H{"companyName": str(), "email": str(), "message": str()}, "companyName", "email", "message"),
			"responses":   responses(map[string]string{"201": "stored", "422": "invalid fields", "429": "rate limited"})}},
		"/api/public/careers": gin.H{"post": gin.H{"summary": "Job application",
			"requestBody": jsonBody(gin.H{"name": str(), "email": str(), "role": str()}, "name", "email", "role"),
			"responses":   responses(map[string]string{"201": "stored", "422": "invalid fields", "429": "rate limited"})}},
		"/api/public/reviews": gin.H{"post": gin.H{"summary": "Leave a review; 4+ stars become pending testimonials",
			"requestBody": jsonBody(gin.H{"rating": gin.H{"type": "integer"}, "feedback": str(), "testimonialText": str(),
				"name": str(), "email": str(), "jobTitle": str(), "companyName": str(), "website": str()}, "rating"),
			"responses": responses(map[string]string{"201": "stored", "422": "invalid fields", "429": "rate limited"})}},
		"/health":  gin.H{"get": gin.H{"summary": "Liveness check", "responses": responses(map[string]string{"200": "healthy"})}},
		"/ready":   gin.H{"get": gin.H{"summary": "Readiness check", "responses": responses(map[string]string{"200": "ready", "503": "not ready"})}},
		"/metrics": gin.H{"get": gin.H{"summary": "Prometheus metrics", "responses": responses(map[string]string{"200": "metrics"})}},
	}

	return gin.H{
		"openapi": "3.0.3",
		"info":    gin.H{"title": "site-admin", "version": "v1.0.0"},
		"paths":   paths,
		"components": gin.H{
			"schemas":         schemas,
			"securitySchemes": gin.H{"bearerAuth": gin.H{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"}},
		},
	}
}
