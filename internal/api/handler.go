package api

import (
	"net/http"
	"strconv"

	"github.com/FooBarWidget/que/common"
	"github.com/FooBarWidget/que/internal/dto"
	"github.com/FooBarWidget/que/middleware"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	service QueueServiceInterface
}

func NewQueueHandler(s QueueServiceInterface) *QueueHandler {
	return &QueueHandler{service: s}
}

var _ QueueHandlerInterface = (*QueueHandler)(nil)

// Enqueue handles POST /jobs. It binds and validates the request body,
// delegates to the service, and returns 201 with the created row.
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueRequest

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	resp, err := h.service.EnqueueJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles GET /jobs/:id. A 404 can mean the job never existed or that
// it already ran to completion and was deleted.
func (h *QueueHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return
	}

	resp, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /stats.
func (h *QueueHandler) Stats(c *gin.Context) {
	resp, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Register wires the queue routes onto r.
func (h *QueueHandler) Register(r gin.IRouter) {
	r.POST("/jobs", h.Enqueue)
	r.GET("/jobs/:id", h.Get)
	r.GET("/stats", h.Stats)
}
