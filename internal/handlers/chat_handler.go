package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/agent"
	"taskagent/internal/models"
	"taskagent/internal/services"
)

// TurnHandler is the part of the engine the HTTP and Telegram surfaces use.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, content string) (*agent.TurnResult, error)
}

type ChatHandler struct {
	engine TurnHandler
	memory services.ChatMemory
	logger *zap.Logger
}

func NewChatHandler(engine TurnHandler, memory services.ChatMemory, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{engine: engine, memory: memory, logger: logger}
}

type agentTaskRequest struct {
	Input string `json:"input"`
}

type agentTaskResponse struct {
	Result string `json:"result"`
}

// @Summary      Send a message to the task agent
// @Tags         Agent
// @Accept       json
// @Produce      json
// @Param        request  body      agentTaskRequest  true  "User message"
// @Success      200      {object}  agentTaskResponse
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      429      {object}  map[string]interface{}
// @Failure      500      {object}  map[string]string
// @Security     BearerAuth
// @Router       /agents/task [post]
func (h *ChatHandler) Send(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req agentTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Info("[agent][send][bind][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.engine.HandleTurn(c.Request.Context(), userID, req.Input)
	if err != nil {
		h.logger.Info("[agent][send][fail]", zap.String("user_id", userID), zap.Error(err))
		writeTurnError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentTaskResponse{Result: res.Text})
}

// @Summary      Conversation history
// @Tags         Agent
// @Produce      json
// @Success      200  {array}   models.Message
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /messages [get]
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	msgs, err := h.memory.GetMessages(c.Request.Context(), models.ChatIDForUser(userID))
	if err != nil {
		h.logger.Error("[messages][list][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

// @Summary      Clear conversation history
// @Tags         Agent
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /messages [delete]
func (h *ChatHandler) Clear(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.memory.Clear(c.Request.Context(), models.ChatIDForUser(userID)); err != nil {
		h.logger.Error("[messages][clear][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear messages"})
		return
	}
	h.logger.Info("[messages][clear]", zap.String("user_id", userID))
	c.Status(http.StatusNoContent)
}
