package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/media"
	"github.com/higai/site-admin/pkg/logger"
)

// ConfirmHeader must be "true" (or ?confirm=true) on DELETE requests.
const ConfirmHeader = "X-Confirm-Delete"

// Linker returns a temporary link for an archived media original.
// storage.MinIOStorage satisfies it.
type Linker interface {
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

type Handler struct {
	svc   service.Service
	enc   *media.Encoder
	links Linker
	// heartbeat is the SSE keep-alive interval.
	heartbeat time.Duration
}

type Option func(*Handler)

func WithLinker(l Linker) Option { return func(h *Handler) { h.links = l } }

func WithHeartbeat(d time.Duration) Option { return func(h *Handler) { h.heartbeat = d } }

func New(svc service.Service, enc *media.Encoder, opts ...Option) *Handler {
	h := &Handler{svc: svc, enc: enc, heartbeat: 25 * time.Second}
	for _, o := range opts {
		o(h)
	}
	if h.enc == nil {
		h.enc = media.NewEncoder()
	}
	return h
}

// Register mounts the admin content API on rg. The caller applies the
// session guard to rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/kinds", h.Kinds)
	rg.POST("/media", h.EncodeMedia)
	rg.GET("/media/link", h.MediaLink)

	c := rg.Group("/content/:kind", h.resolveKind)
	c.GET("", h.List)
	c.POST("", h.Create)
	c.GET("/feed", h.Feed)
	c.GET("/:id", h.Get)
	c.PATCH("/:id", h.Update)
	c.DELETE("/:id", h.Delete)
	c.POST("/:id/status", h.ToggleStatus)
}

const kindKey = "contentKind"

func (h *Handler) resolveKind(c *gin.Context) {
	k, err := content.ParseKind(c.Param("kind"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Set(kindKey, k)
	c.Next()
}

func kindOf(c *gin.Context) content.Kind {
	return c.MustGet(kindKey).(content.Kind)
}

type kindInfo struct {
	Key          string          `json:"key"`
	Label        string          `json:"label"`
	Collection   string          `json:"collection"`
	Fields       []content.Field `json:"fields"`
	TitleField   string          `json:"titleField"`
	DetailFields []string        `json:"detailFields"`
	Moderated    bool            `json:"moderated"`
}

// Kinds returns the navigation entries with their form schemas.
func (h *Handler) Kinds(c *gin.Context) {
	out := make([]kindInfo, 0, 6)
	for _, k := range content.Kinds() {
		r := k.Route()
		out = append(out, kindInfo{
			Key:          r.Key,
			Label:        r.Label,
			Collection:   r.Collection,
			Fields:       r.Fields,
			TitleField:   r.TitleField,
			DetailFields: r.DetailFields,
			Moderated:    k.Moderated(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) List(c *gin.Context) {
	docs, err := h.svc.List(c.Request.Context(), kindOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (h *Handler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), kindOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) Create(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Create(c.Request.Context(), kindOf(c), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Update applies a partial update; fields absent from the body are untouched.
func (h *Handler) Update(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, id := kindOf(c), c.Param("id")
	if err := h.svc.Update(c.Request.Context(), kind, id, fields); err != nil {
		writeError(c, err)
		return
	}
	d, err := h.svc.Get(c.Request.Context(), kind, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) ToggleStatus(c *gin.Context) {
	next, err := h.svc.ToggleStatus(c.Request.Context(), kindOf(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": next})
}

// Delete requires explicit confirmation; without it nothing is deleted.
func (h *Handler) Delete(c *gin.Context) {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	if !confirmed {
		confirmed, _ = strconv.ParseBool(c.GetHeader(ConfirmHeader))
	}
	if !confirmed {
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": "delete must be confirmed", "hint": "repeat with ?confirm=true or " + ConfirmHeader + ": true"})
		return
	}
	if err := h.svc.Delete(c.Request.Context(), kindOf(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Feed streams the collection as Server-Sent Events: one "snapshot" event
// per change with the full document list, an "error" event if the
// subscription fails, and "ping" comments in between.
func (h *Handler) Feed(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	kind := kindOf(c)
	// the server write timeout would cut the stream
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debugf("feed: cannot clear write deadline: %v", err)
	}
	feed := h.svc.Watch(ctx, kind)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()
	logger.Debugf("feed: sse client attached to %s", kind)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case snap, ok := <-feed:
			if !ok {
				return
			}
			if snap.Err != nil {
				c.SSEvent("error", gin.H{"error": snap.Err.Error()})
				c.Writer.Flush()
				return
			}
			c.SSEvent("snapshot", gin.H{"kind": kind, "documents": snap.Documents})
			c.Writer.Flush()
		}
	}
}

// EncodeMedia accepts a multipart "file" and returns its data URI.
func (h *Handler) EncodeMedia(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if err := h.enc.Check(fh.Size); err != nil {
		writeError(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	res, err := h.enc.Encode(c.Request.Context(), fh.Filename, fh.Size, fh.Header.Get("Content-Type"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MediaLink resolves ?key= of an archived original to a temporary URL.
func (h *Handler) MediaLink(c *gin.Context) {
	if h.links == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "media archive not configured"})
		return
	}
	key := strings.TrimSpace(c.Query("key"))
	if key == "" || !strings.HasPrefix(key, "media/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	u, err := h.links.PresignedURL(c.Request.Context(), key, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// writeError maps service errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrNotModerated), errors.Is(err, service.ErrNotPublic):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "store timeout"})
	default:
		logger.Errorf("content api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// WriteError is writeError for other handler packages sharing the mapping.
func WriteError(c *gin.Context, err error) { writeError(c, err) }
