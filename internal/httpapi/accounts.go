package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brgw/gateway/internal/auth"
)

// accountsHandler serves GET /v1/accounts/status, branching on whether the
// gateway was wired with a single-account or multi-account auth manager.
type accountsHandler struct {
	single *auth.SingleTokenManager
	multi  *auth.MultiTokenManager
}

func newAccountsHandler(single *auth.SingleTokenManager, multi *auth.MultiTokenManager) *accountsHandler {
	return &accountsHandler{single: single, multi: multi}
}

func (h *accountsHandler) status(c *gin.Context) {
	if h.multi != nil {
		slots := h.multi.Status()
		out := make([]gin.H, len(slots))
		for i, s := range slots {
			out[i] = gin.H{
				"active":           s.Active,
				"has_access_token": s.HasAccessToken,
				"expires_at":       s.ExpiresAt,
				"last_refresh":     s.LastRefresh,
				"is_failed":        s.IsFailed,
				"failure_count":    s.FailureCount,
			}
		}
		c.JSON(http.StatusOK, gin.H{"mode": "multi-account", "total_tokens": len(slots), "accounts": out})
		return
	}

	s := h.single.Status()
	c.JSON(http.StatusOK, gin.H{
		"mode": "single-account",
		"account": gin.H{
			"has_access_token": s.HasAccessToken,
			"expires_at":       s.ExpiresAt,
			"last_refresh":     s.LastRefresh,
			"is_failed":        s.IsFailed,
			"failure_count":    s.FailureCount,
			"profile_arn":      s.ProfileArn,
		},
	})
}
