package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/models"
	"taskagent/internal/services"
)

type TaskHandler struct {
	service services.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(service services.TaskService, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{service: service, logger: logger}
}

// parseTaskFilter reads the task list query parameters. The returned map
// echoes the filters that were set.
func parseTaskFilter(c *gin.Context, userID string) (models.TaskFilter, map[string]string, error) {
	filter := models.TaskFilter{UserID: &userID}
	applied := map[string]string{}

	if v := strings.TrimSpace(c.Query("status")); v != "" {
		s := models.TaskStatus(v)
		if !s.Valid() {
			return filter, nil, fmt.Errorf("invalid status %q", v)
		}
		filter.Status = &s
		applied["status"] = v
	}
	if v := strings.TrimSpace(c.Query("priority")); v != "" {
		p := models.TaskPriority(v)
		if !p.Valid() {
			return filter, nil, fmt.Errorf("invalid priority %q", v)
		}
		filter.Priority = &p
		applied["priority"] = v
	}
	if v := strings.TrimSpace(c.Query("title")); v != "" {
		filter.TitleContains = &v
		applied["title"] = v
	}
	for _, d := range []struct {
		param    string
		from, to **time.Time
	}{
		{"created_date", &filter.CreatedFrom, &filter.CreatedTo},
		{"due_date", &filter.DueFrom, &filter.DueTo},
	} {
		v := strings.TrimSpace(c.Query(d.param))
		if v == "" {
			continue
		}
		day, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, nil, fmt.Errorf("invalid %s (YYYY-MM-DD)", d.param)
		}
		next := day.Add(24 * time.Hour)
		*d.from, *d.to = &day, &next
		applied[d.param] = v
	}
	return filter, applied, nil
}

// @Summary      List tasks
// @Description  Lists the caller's tasks after marking overdue ones.
// @Tags         Tasks
// @Produce      json
// @Param        status        query     string  false  "pending | in_progress | completed | over_due"
// @Param        priority      query     string  false  "low | medium | high"
// @Param        title         query     string  false  "Title substring"
// @Param        created_date  query     string  false  "YYYY-MM-DD"
// @Param        due_date      query     string  false  "YYYY-MM-DD"
// @Success      200  {array}   models.Task
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	filter, _, err := parseTaskFilter(c, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("[task][list][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}
