// Package orchestrator drives one client request end to end: bearer auth,
// truncation-recovery mutation, payload normalisation, token fetch,
// the upstream POST, and response stream parsing (spec.md §4, §6).
package orchestrator

import (
	"bytes"
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/fingerprint"
	"github.com/brgw/gateway/internal/metrics"
	"github.com/brgw/gateway/internal/model"
	"github.com/brgw/gateway/internal/normalizer"
	"github.com/brgw/gateway/internal/streamparser"
	"github.com/brgw/gateway/internal/truncation"
)

// defaultChatURLTemplate is the Open Question 1 resolution (SPEC_FULL.md §9):
// a configurable template defaulting to the real endpoint shape.
const defaultChatURLTemplate = "https://codewhisperer.{region}.amazonaws.com/generateAssistantResponse"

const defaultIdleTimeout = 60 * time.Second

// TokenSource abstracts over the Single- and Multi-Token managers.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
	ProfileArn() string
}

// Config configures an Orchestrator. Zero values take the documented
// defaults.
type Config struct {
	Tokens          TokenSource
	Cache           *truncation.Cache
	Metrics         *metrics.Registry
	Logger          *zap.Logger
	ChatURLTemplate string
	Region          string
	ProxyAPIKey     string
	GatewayName     string
	DefaultModel    string

	ToolDescriptionMaxLength int
	ThinkingEnabled          bool
	ThinkingMaxLength        int

	IdleTimeout time.Duration
}

// Orchestrator is the per-process request driver. Safe for concurrent use.
type Orchestrator struct {
	tokens  TokenSource
	cache   *truncation.Cache
	metrics *metrics.Registry
	logger  *zap.Logger

	chatURLTemplate string
	region          string
	proxyAPIKey     string
	gatewayName     string
	defaultModel    string

	toolDescriptionMaxLength int
	thinkingEnabled          bool
	thinkingMaxLength        int

	idleTimeout time.Duration

	sharedClient *http.Client
}

// New builds an Orchestrator, constructing the tuned transport shared by
// non-streaming requests (grounded on the teacher's
// internal/infrastructure/llm/openai/provider.go transport tuning).
func New(cfg Config) *Orchestrator {
	template := cfg.ChatURLTemplate
	if template == "" {
		template = defaultChatURLTemplate
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	gatewayName := cfg.GatewayName
	if gatewayName == "" {
		gatewayName = "brgw-gateway"
	}
	return &Orchestrator{
		tokens:                   cfg.Tokens,
		cache:                    cfg.Cache,
		metrics:                  cfg.Metrics,
		logger:                   cfg.Logger,
		chatURLTemplate:          template,
		region:                   cfg.Region,
		proxyAPIKey:              cfg.ProxyAPIKey,
		gatewayName:              gatewayName,
		defaultModel:             cfg.DefaultModel,
		toolDescriptionMaxLength: cfg.ToolDescriptionMaxLength,
		thinkingEnabled:          cfg.ThinkingEnabled,
		thinkingMaxLength:        cfg.ThinkingMaxLength,
		idleTimeout:              idle,
		sharedClient:             &http.Client{Transport: tunedTransport()},
	}
}

func tunedTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// clientFor implements the client_for(isStreaming) pattern: a streaming
// request gets a fresh, disposable client (its connection is held open for
// the whole response and shouldn't be pooled back for reuse under load),
// while non-streaming requests share one pooled client.
func (o *Orchestrator) clientFor(streaming bool) *http.Client {
	if streaming {
		return &http.Client{Transport: tunedTransport()}
	}
	return o.sharedClient
}

// Authenticate performs a constant-time comparison of the bearer token
// presented by the client against the configured proxy API key. An empty
// configured key disables the check (local/dev mode).
func (o *Orchestrator) Authenticate(presented string) error {
	if o.proxyAPIKey == "" {
		return nil
	}
	a := []byte(o.proxyAPIKey)
	b := []byte(presented)
	if len(a) != len(b) || subtle.ConstantTimeCompare(a, b) != 1 {
		return apperrors.New(apperrors.CredentialsMissing, "invalid or missing proxy API key")
	}
	return nil
}

// ResolveModel returns the requested model id, or the configured default
// when the client didn't specify one.
func (o *Orchestrator) ResolveModel(requested string) string {
	if requested != "" {
		return requested
	}
	return o.defaultModel
}

// ChatRequest is one normalised client request, independent of wire
// protocol.
type ChatRequest struct {
	Model        string
	Messages     []model.Message
	Tools        []model.Tool
	SystemPrompt string
	Stream       bool
}

// ChatOutcome is the result of driving one request to completion.
type ChatOutcome struct {
	Model     string
	Events    []streamparser.Event
	ToolCalls []streamparser.FinalToolCall
}

// Execute runs req end to end and returns every event/tool-call the
// upstream response produced. ExecuteStreaming additionally passes each
// event to a callback.
func (o *Orchestrator) Execute(ctx context.Context, req ChatRequest) (*ChatOutcome, error) {
	endpoint := "chat"
	start := time.Now()
	outcome, err := o.execute(ctx, req, nil)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
		o.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
	return outcome, err
}

// ExecuteStreaming runs req end to end and invokes onEvent for each event in
// stream order. The events are collected first: onEvent is called only after
// the upstream response has been read to its end, not as each event arrives.
func (o *Orchestrator) ExecuteStreaming(ctx context.Context, req ChatRequest, onEvent func(streamparser.Event)) (*ChatOutcome, error) {
	if o.metrics != nil {
		o.metrics.ActiveStreams.Inc()
		defer o.metrics.ActiveStreams.Dec()
	}
	return o.execute(ctx, req, onEvent)
}

func (o *Orchestrator) execute(ctx context.Context, req ChatRequest, onEvent func(streamparser.Event)) (*ChatOutcome, error) {
	messages := cloneMessages(req.Messages)
	if o.cache != nil {
		messages = o.applyTruncationRecovery(messages)
	}

	token, err := o.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := normalizer.Normalize(normalizer.Input{
		Messages:                 messages,
		Tools:                    req.Tools,
		SystemPrompt:             req.SystemPrompt,
		ToolDescriptionMaxLength: o.toolDescriptionMaxLength,
		ThinkingEnabled:          o.thinkingEnabled,
		ThinkingMaxLength:        o.thinkingMaxLength,
		ProfileArn:               o.tokens.ProfileArn(),
	})
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InternalError, "failed to marshal upstream payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.InternalError, "failed to build upstream request", err)
	}
	o.setHeaders(httpReq, token)

	client := o.clientFor(req.Stream)
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.UpstreamUnavailable, "upstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, mapUpstreamError(resp.StatusCode, respBody)
	}

	parser := streamparser.New(o.cache)
	events, toolCalls, err := parser.Consume(ctx, resp.Body, o.idleTimeout)
	if err != nil && ctx.Err() == nil {
		o.logger.Warn("upstream stream ended with an error", zap.Error(err))
	}
	if onEvent != nil {
		for _, e := range events {
			onEvent(e)
		}
	}

	return &ChatOutcome{Model: o.ResolveModel(req.Model), Events: events, ToolCalls: toolCalls}, nil
}

// applyTruncationRecovery consumes any cached truncation diagnosis that
// matches content in this request, annotating it so the model sees that a
// prior turn was cut off instead of silently re-sending malformed state
// (spec.md §4.G). Each cache entry is consumed at most once.
func (o *Orchestrator) applyTruncationRecovery(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Content.Kind == model.ContentBlocks {
			blocks := append([]model.Block{}, m.Content.Blocks...)
			changed := false
			for j, b := range blocks {
				if b.Kind != model.BlockToolResult {
					continue
				}
				if entry, ok := o.cache.ConsumeToolTruncation(b.ToolResultID); ok {
					blocks[j].ToolResultContent = fmt.Sprintf(
						"[API Limitation] %s, %d bytes\n---\n%s",
						entry.Reason, entry.SizeBytes, b.ToolResultContent)
					changed = true
				}
			}
			if changed {
				m.Content = model.NewBlocksContent(blocks)
			}
		}

		out = append(out, m)

		if m.Role == model.RoleAssistant && m.Content.Kind == model.ContentString && m.Content.Text != "" {
			digest := streamparser.ContentDigest(m.Content.Text)
			if entry, ok := o.cache.ConsumeContentTruncation(digest, len(m.Content.Text)); ok {
				out = append(out, model.Message{
					Role: model.RoleUser,
					Content: model.NewTextContent(fmt.Sprintf(
						"[System Notice] the previous assistant output was truncated upstream (%s, %d bytes) and may be incomplete.",
						entry.Reason, entry.SizeBytes)),
				})
			}
		}
	}
	return out
}

func cloneMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}

func (o *Orchestrator) chatURL() string {
	return strings.ReplaceAll(o.chatURLTemplate, "{region}", o.region)
}

// setHeaders applies the exact header set the Upstream service expects
// (spec.md §6). x-amzn-kiro-agent-mode is a fixed value the real service
// requires verbatim, not narrative text, so it is kept literal.
func (o *Orchestrator) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	ua := fmt.Sprintf("%s/%s", o.gatewayName, fingerprint.Short())
	req.Header.Set("User-Agent", ua)
	req.Header.Set("x-amz-user-agent", ua)
	req.Header.Set("x-amzn-codewhisperer-optout", "true")
	req.Header.Set("x-amzn-kiro-agent-mode", "vibe")
	req.Header.Set("amz-sdk-request", "attempt=1")
	req.Header.Set("amz-sdk-invocation-id", uuid.NewString())
}

// mapUpstreamError classifies a non-200 upstream response into the
// apperrors vocabulary (spec.md §7).
func mapUpstreamError(status int, body []byte) error {
	detail := string(body)
	var kind apperrors.Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperrors.UpstreamAuthFailed
	case status == http.StatusBadRequest:
		kind = apperrors.UpstreamBadRequest
	case status == http.StatusTooManyRequests:
		kind = apperrors.UpstreamRateLimited
	case status >= 500:
		kind = apperrors.UpstreamServerError
	default:
		kind = apperrors.InternalError
	}
	return apperrors.WithDetail(kind, fmt.Sprintf("upstream returned status %d", status), detail).WithStatus(status)
}
