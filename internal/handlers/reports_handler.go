package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/pdf"
	"taskagent/internal/services"
)

type ReportHandler struct {
	tasks  services.TaskService
	pdf    pdf.Generator
	logger *zap.Logger
}

func NewReportHandler(tasks services.TaskService, gen pdf.Generator, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{tasks: tasks, pdf: gen, logger: logger}
}

// @Summary      Task report
// @Description  Renders the filtered task list as a PDF.
// @Tags         Tasks
// @Produce      application/pdf
// @Param        status        query     string  false  "pending | in_progress | completed | over_due"
// @Param        priority      query     string  false  "low | medium | high"
// @Param        title         query     string  false  "Title substring"
// @Param        created_date  query     string  false  "YYYY-MM-DD"
// @Param        due_date      query     string  false  "YYYY-MM-DD"
// @Success      200  {file}    file
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /tasks/report.pdf [get]
func (h *ReportHandler) TaskReport(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	filter, applied, err := parseTaskFilter(c, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tasks, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("[report][tasks][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}

	now := time.Now().UTC()
	var buf bytes.Buffer
	err = h.pdf.GenerateTaskReport(&buf, pdf.TaskReportData{
		UserID:      userID,
		GeneratedAt: now,
		Filters:     applied,
		Tasks:       tasks,
	})
	if err != nil {
		h.logger.Error("[report][pdf][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate report"})
		return
	}

	h.logger.Info("[report][tasks]", zap.String("user_id", userID), zap.Int("tasks", len(tasks)))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tasks-%s.pdf"`, now.Format("20060102")))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
