package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskagent/internal/repositories"
	"taskagent/internal/services"
	"taskagent/internal/utils"
)

const (
	linkCodeTTL = 30 * time.Minute

	tgWelcome     = "Hi! I manage your tasks. Link your account first by sending:\n/link <code>\nYou can get a code from the app."
	tgBadCode     = "That code doesn't look right. Send exactly 32 hex characters:\n/link 0123456789ABCDEF0123456789ABCDEF"
	tgCodeExpired = "This code is invalid or has expired. Please request a new one."
	tgLinkFailed  = "Could not link your account. Please try again later."
	tgLinked      = "Done! Your account is linked. Just tell me what you need, e.g. \"show my tasks for today\"."
	tgNotLinked   = "This chat is not linked to an account yet. Send /link <code> first."

	// TelegramSecretHeader carries the secret_token registered with setWebhook.
	TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

type IntegrationsHandler struct {
	secret []byte
	tg     services.ChatSender
	links  repositories.TelegramLinkRepository
	users  repositories.UserRepository
	engine TurnHandler
	logger *zap.Logger
}

// NewIntegrationsHandler builds the Telegram handlers. Webhook updates are
// accepted only when they carry webhookSecret; an empty secret rejects all
// of them.
func NewIntegrationsHandler(
	webhookSecret string,
	tg services.ChatSender,
	links repositories.TelegramLinkRepository,
	users repositories.UserRepository,
	engine TurnHandler,
	logger *zap.Logger,
) *IntegrationsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntegrationsHandler{secret: []byte(webhookSecret), tg: tg, links: links, users: users, engine: engine, logger: logger}
}

// @Summary      Telegram webhook
// @Description  Receives bot updates. Signed updates always get 200.
// @Tags         Integrations
// @Accept       json
// @Param        X-Telegram-Bot-Api-Secret-Token  header  string  true  "Webhook secret"
// @Success      200
// @Failure      401  {object}  map[string]string
// @Failure      429  {object}  map[string]interface{}
// @Router       /integrations/telegram/webhook [post]
func (h *IntegrationsHandler) Webhook(c *gin.Context) {
	if !h.Signed(c) {
		h.logger.Warn("[tg][webhook] bad secret token", zap.String("ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var up tgbotapi.Update
	if err := c.ShouldBindJSON(&up); err != nil || up.Message == nil || up.Message.Chat == nil {
		if err != nil {
			h.logger.Info("[tg][webhook] bind json failed", zap.Error(err))
		}
		c.Status(http.StatusOK)
		return
	}

	text := strings.TrimSpace(up.Message.Text)
	chatID := up.Message.Chat.ID
	h.logger.Info("[tg][webhook] incoming", zap.Int64("chat_id", chatID))

	switch {
	case text == "":
	case strings.HasPrefix(text, "/start"):
		h.send(chatID, tgWelcome)
	case strings.HasPrefix(text, "/link"):
		h.link(c, chatID, strings.TrimPrefix(text, "/link"))
	default:
		h.converse(c, chatID, text)
	}
	c.Status(http.StatusOK)
}

// Signed reports whether the request carries the webhook secret.
func (h *IntegrationsHandler) Signed(c *gin.Context) bool {
	got := c.GetHeader(TelegramSecretHeader)
	return len(h.secret) > 0 && subtle.ConstantTimeCompare([]byte(got), h.secret) == 1
}

func (h *IntegrationsHandler) send(chatID int64, text string) {
	if err := h.tg.SendMessage(chatID, text); err != nil {
		h.logger.Error("[tg][webhook][send][err]", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (h *IntegrationsHandler) link(c *gin.Context, chatID int64, raw string) {
	code, ok := utils.NormalizeLinkCode(raw)
	if !ok {
		h.send(chatID, tgBadCode)
		return
	}
	ctx := c.Request.Context()
	link, err := h.links.UseByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			h.logger.Error("[tg][link][err]", zap.Error(err))
		}
		h.send(chatID, tgCodeExpired)
		return
	}
	if err := h.users.UpdateTelegramChat(ctx, link.UserID, chatID); err != nil {
		h.logger.Error("[tg][link][update][err]", zap.String("user_id", link.UserID), zap.Error(err))
		h.send(chatID, tgLinkFailed)
		return
	}
	h.logger.Info("[tg][link] chat linked", zap.String("user_id", link.UserID), zap.Int64("chat_id", chatID))
	h.send(chatID, tgLinked)
}

// converse routes free text through the agent on behalf of the linked user.
func (h *IntegrationsHandler) converse(c *gin.Context, chatID int64, text string) {
	ctx := c.Request.Context()
	user, err := h.users.GetByChatID(ctx, chatID)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			h.logger.Error("[tg][converse][user][err]", zap.Int64("chat_id", chatID), zap.Error(err))
			h.send(chatID, "Something went wrong. Please try again later.")
			return
		}
		h.send(chatID, tgNotLinked)
		return
	}

	res, err := h.engine.HandleTurn(ctx, user.ID, text)
	if err != nil {
		_, te := turnStatus(err)
		h.logger.Info("[tg][converse][fail]", zap.String("user_id", user.ID), zap.Error(err))
		h.send(chatID, te.Message)
		return
	}
	h.send(chatID, res.Text)
}

type linkCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Hint      string    `json:"hint"`
}

// @Summary      Request a Telegram link code
// @Tags         Integrations
// @Produce      json
// @Success      200  {object}  linkCodeResponse
// @Failure      401  {object}  map[string]string
// @Failure      429  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Security     BearerAuth
// @Router       /integrations/telegram/request-link [post]
func (h *IntegrationsHandler) RequestTelegramLink(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	code, err := utils.NewLinkCode()
	if err != nil {
		h.logger.Error("[tg][request-link][rand][err]", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	link, err := h.links.Create(c.Request.Context(), userID, code, linkCodeTTL)
	if err != nil {
		h.logger.Error("[tg][request-link][err]", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot create link"})
		return
	}
	c.JSON(http.StatusOK, linkCodeResponse{
		Code:      link.Code,
		ExpiresAt: link.ExpiresAt,
		Hint:      "Open the bot chat and send: /link " + link.Code,
	})
}
