package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskagent/internal/agent"
	"taskagent/internal/middleware"
)

// currentUser returns the authenticated user id or writes a 401.
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// turnStatus maps an engine failure to its HTTP status.
func turnStatus(err error) (int, *agent.TurnError) {
	var te *agent.TurnError
	if !errors.As(err, &te) {
		return http.StatusInternalServerError, &agent.TurnError{Kind: agent.Internal, Message: agent.MsgInternal}
	}
	switch te.Kind {
	case agent.Unauthorized:
		return http.StatusUnauthorized, te
	case agent.RateLimited:
		return http.StatusTooManyRequests, te
	case agent.BadInput:
		return http.StatusBadRequest, te
	default:
		return http.StatusInternalServerError, te
	}
}

func writeTurnError(c *gin.Context, err error) {
	status, te := turnStatus(err)
	if status == http.StatusTooManyRequests {
		middleware.TooManyRequests(c, te.RetryAfter)
		return
	}
	c.JSON(status, gin.H{"error": te.Message})
}
