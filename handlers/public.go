package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/higai/site-admin/internal/content"
	contenthandler "github.com/higai/site-admin/internal/content/handler"
	"github.com/higai/site-admin/internal/content/service"
)

// privateFields never leave the server through the public API.
var privateFields = []string{"email"}

// PublicHandler serves the marketing site: published listings and the
// contact, careers and review forms.
type PublicHandler struct {
	svc service.Service
}

func NewPublicHandler(svc service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// Register mounts the public API on rg. guard (may be nil) runs first on
// every route.
func (h *PublicHandler) Register(rg *gin.RouterGroup, guard gin.HandlerFunc) {
	p := rg.Group("/api/public")
	if guard != nil {
		p.Use(guard)
	}
	p.POST("/contact", h.Contact)
	p.POST("/careers", h.Career)
	p.POST("/reviews", h.Review)
	p.GET("/:kind", h.List)
	p.GET("/:kind/:id", h.Get)
}

func publicKind(c *gin.Context) (content.Kind, bool) {
	k, err := content.ParseKind(c.Param("kind"))
	if err != nil || !k.Route().Public {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return k, true
}

func redact(d content.Document) content.Document {
	out := d.Clone()
	for _, f := range privateFields {
		delete(out.Fields, f)
	}
	return out
}

// List returns a kind's published documents, newest first.
func (h *PublicHandler) List(c *gin.Context) {
	kind, ok := publicKind(c)
	if !ok {
		return
	}
	docs, err := h.svc.Published(c.Request.Context(), kind)
	if err != nil {
		contenthandler.WriteError(c, err)
		return
	}
	out := make([]content.Document, len(docs))
	for i, d := range docs {
		out[i] = redact(d)
	}
	c.JSON(http.StatusOK, out)
}

func (h *PublicHandler) Get(c *gin.Context) {
	kind, ok := publicKind(c)
	if !ok {
		return
	}
	d, err := h.svc.PublishedGet(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		contenthandler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, redact(d))
}

func (h *PublicHandler) Contact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.SubmitContact(c.Request.Context(), req)
	if err != nil {
		contenthandler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": d.ID, "message": "Thanks! We will get back to you soon."})
}

func (h *PublicHandler) Career(c *gin.Context) {
	var req service.CareerApplication
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.SubmitCareer(c.Request.Context(), req)
	if err != nil {
		contenthandler.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": d.ID, "message": "Application received."})
}

// Review stores a rating. Positive reviews wait for moderation before they
// are published.
func (h *PublicHandler) Review(c *gin.Context) {
	var req service.Review
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SubmitReview(c.Request.Context(), req)
	if err != nil {
		contenthandler.WriteError(c, err)
		return
	}
	msg := "Thank you for your feedback."
	if res.Collection == content.CollectionTestimonials {
		msg = "Thank you! Your review will appear once it has been approved."
	}
	c.JSON(http.StatusCreated, gin.H{"id": res.Document.ID, "collection": res.Collection, "message": msg})
}
