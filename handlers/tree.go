package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// TreeHandler handles HTTP requests for one hierarchy
type TreeHandler struct {
	svc    Service
	logger *slog.Logger
}

// NewTreeHandler creates a new TreeHandler instance
func NewTreeHandler(svc Service, logger *slog.Logger) *TreeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeHandler{
		svc:    svc,
		logger: logger.With("kind", string(svc.Kind())),
	}
}

// Register mounts the hierarchy's routes on rg
func (h *TreeHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/tree", h.GetTree)
	rg.GET("/flat", h.GetFlat)
	rg.GET("/nodes/:id", h.GetNode)
	rg.GET("/children/count", h.CountChildren)
	rg.POST("/nodes", h.CreateNode)
	rg.PUT("/nodes/:id/move", h.MoveNode)
	rg.DELETE("/nodes/:id", h.DeleteNode)
}

// RegisterRoutes mounts every service under /api/<kind>
func RegisterRoutes(r *gin.Engine, logger *slog.Logger, services ...Service) {
	api := r.Group("/api")
	for _, svc := range services {
		NewTreeHandler(svc, logger).Register(api.Group("/" + string(svc.Kind())))
	}
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports whether the store is reachable. A nil pinger is always healthy.
func Health(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			if err := p.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h *TreeHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "request_id", RequestIDFrom(c), "error", err)
	}
	c.JSON(status, NewErrorBody(err))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid node id %q", ErrBadRequest, raw)
	}
	return id, nil
}

// GetTree returns the ordered forest
func (h *TreeHandler) GetTree(c *gin.Context) {
	data, err := h.svc.TreeJSON(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetFlat returns the depth-annotated pre-order listing
func (h *TreeHandler) GetFlat(c *gin.Context) {
	data, err := h.svc.FlatJSON(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetNode returns one node
func (h *TreeHandler) GetNode(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	node, err := h.svc.Node(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// CountChildren counts the direct children of ?parentId=; without it, counts roots
func (h *TreeHandler) CountChildren(c *gin.Context) {
	var parentID *int64
	if raw := c.Query("parentId"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		parentID = &id
	}
	n, err := h.svc.ChildrenCount(c.Request.Context(), parentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parentId": parentID, "count": n})
}

// CreateNode creates a new node in the tree
func (h *TreeHandler) CreateNode(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	node, err := h.svc.Create(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// MoveNode repositions a node
func (h *TreeHandler) MoveNode(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := h.svc.Move(c.Request.Context(), id, body); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteNode removes a node and its subtree
func (h *TreeHandler) DeleteNode(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
