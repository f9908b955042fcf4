package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/services"
)

type deleteTaskController struct{ svc services.TaskService }

func NewDeleteTaskController(svc services.TaskService) *deleteTaskController {
	return &deleteTaskController{svc}
}

func (h *deleteTaskController) Handle(c *gin.Context) {
	deferred, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if deferred {
		c.JSON(http.StatusAccepted, gin.H{"status": "deletion scheduled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
