package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/services"
)

type statsController struct{ svc services.StatsService }

func NewStatsController(svc services.StatsService) *statsController {
	return &statsController{svc: svc}
}

func (h *statsController) Handle(c *gin.Context) {
	out, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
