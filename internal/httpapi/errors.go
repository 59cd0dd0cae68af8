package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brgw/gateway/internal/apperrors"
)

// requestIDKey is the gin context key a short request id is stashed under by
// requestIDMiddleware, read back for response ids and log correlation.
const requestIDKey = "gateway.request_id"

func requestIDMiddleware(c *gin.Context) {
	id := c.GetHeader("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Writer.Header().Set("X-Request-Id", id)
	c.Next()
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return uuid.NewString()
}

// wireKind distinguishes which client-facing error envelope a route wants.
type wireKind int

const (
	wireOpenAI wireKind = iota
	wireAnthropic
)

const wireKindKey = "gateway.wire_kind"

func withWireKind(kind wireKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(wireKindKey, kind)
		c.Next()
	}
}

// writeError renders err as the wire-native error envelope for the route's
// protocol (OpenAI or Anthropic), selected by the route's withWireKind
// middleware, falling back to the OpenAI envelope for operational routes.
func writeError(c *gin.Context, err error) {
	appErr, ok := err.(*apperrors.Error)
	if !ok {
		appErr = apperrors.Wrap(apperrors.InternalError, "unexpected error", err)
	}

	kind := wireOpenAI
	if v, ok := c.Get(wireKindKey); ok {
		if k, ok := v.(wireKind); ok {
			kind = k
		}
	}

	status := appErr.HTTPStatus()
	if kind == wireAnthropic {
		c.AbortWithStatusJSON(status, anthropicErrorBody(appErr))
		return
	}
	c.AbortWithStatusJSON(status, openAIErrorBody(appErr))
}

func openAIErrorBody(err error) gin.H {
	appErr, ok := err.(*apperrors.Error)
	if !ok {
		return gin.H{"error": gin.H{"message": err.Error(), "type": "internal_error"}}
	}
	return gin.H{"error": gin.H{
		"message": appErr.Message,
		"type":    string(appErr.Kind),
		"code":    appErr.HTTPStatus(),
	}}
}

func anthropicErrorBody(err error) gin.H {
	appErr, ok := err.(*apperrors.Error)
	if !ok {
		return gin.H{"type": "error", "error": gin.H{"type": "api_error", "message": err.Error()}}
	}
	return gin.H{"type": "error", "error": gin.H{
		"type":    anthropicErrorType(appErr.Kind),
		"message": appErr.Message,
	}}
}

func anthropicErrorType(k apperrors.Kind) string {
	switch k {
	case apperrors.CredentialsMissing, apperrors.CredentialsStale, apperrors.UpstreamAuthFailed:
		return "authentication_error"
	case apperrors.UpstreamBadRequest, apperrors.MalformedRequest, apperrors.ToolNameTooLong, apperrors.NoMessages:
		return "invalid_request_error"
	case apperrors.UpstreamRateLimited:
		return "rate_limit_error"
	case apperrors.UpstreamServerError, apperrors.UpstreamUnavailable:
		return "api_error"
	default:
		return "api_error"
	}
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"marshal failure"}`
	}
	return string(b)
}

// notFoundHandler matches the teacher's convention of a JSON 404 instead of
// gin's default plaintext body.
func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "not found", "type": "not_found"}})
}
