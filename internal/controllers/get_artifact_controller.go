package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/services"
)

type getArtifactController struct{ svc services.TaskService }

func NewGetArtifactController(svc services.TaskService) *getArtifactController {
	return &getArtifactController{svc}
}

func (h *getArtifactController) Handle(c *gin.Context) {
	data, contentType, err := h.svc.Artifact(c.Request.Context(), c.Param("id"), c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
