package controllers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/services"
)

type submitTaskController struct {
	svc            services.TaskService
	maxUploadBytes int64
}

func NewSubmitTaskController(svc services.TaskService, maxUploadBytes int64) *submitTaskController {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &submitTaskController{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Handle accepts a multipart upload: field "type" selects the pipeline and
// field "file" carries the diagram. Oversized bodies are rejected before the
// payload is buffered.
func (h *submitTaskController) Handle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	taskType := c.PostForm("type")
	if taskType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'type' is required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'file' is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	defer f.Close()
	payload, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}

	task, err := h.svc.Submit(c.Request.Context(), taskType, fh.Filename, payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}
