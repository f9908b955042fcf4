package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/services"
)

type listTasksController struct{ svc services.TaskService }

func NewListTasksController(svc services.TaskService) *listTasksController {
	return &listTasksController{svc}
}

func (h *listTasksController) Handle(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit'"})
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'offset'"})
		return
	}

	tasks, total, err := h.svc.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":  tasks,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidQuery
	}
	return n, nil
}

var errInvalidQuery = &queryError{}

type queryError struct{}

func (*queryError) Error() string { return "invalid query parameter" }
