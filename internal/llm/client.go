package llm

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Config holds the endpoints and credentials of the completion service.
type Config struct {
	ClientID           string
	ClientSecret       string
	Scope              string
	AuthURL            string
	APIURL             string // base URL; "/chat/completions" is appended
	Model              string
	AuthTimeout        time.Duration
	CompletionTimeout  time.Duration
	InsecureSkipVerify bool
	RestrictionPhrases []string
}

// Completer produces a completion for a system prompt and user text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// Client talks to a GigaChat-style service: an OAuth token exchange
// followed by OpenAI-compatible chat completions.
// It keeps no credentials between sessions.
type Client struct {
	cfg        Config
	authHTTP   *http.Client
	apiHTTP    *http.Client
	restricted *RestrictionDetector
	logger     zerolog.Logger
}

// NewClient creates a new completion service client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 30 * time.Second
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		// The service certificate chain is often not in the system trust store.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Client{
		cfg:        cfg,
		authHTTP:   &http.Client{Timeout: cfg.AuthTimeout, Transport: transport},
		apiHTTP:    &http.Client{Timeout: cfg.CompletionTimeout, Transport: transport},
		restricted: NewRestrictionDetector(cfg.RestrictionPhrases),
		logger:     logger.With().Str("component", "llm").Logger(),
	}
}

// tokenResponse is the body of a successful token exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Token exchanges the client credentials for a fresh bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	const op = "token exchange"

	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", &Error{Kind: KindConfiguration, Op: op, Detail: "client id and client secret must be set"}
	}

	form := url.Values{"scope": {c.cfg.Scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Op: op, Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())

	start := time.Now()
	resp, err := c.authHTTP.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("token exchange completed")

	if resp.StatusCode != http.StatusOK {
		detail := errorDetail(body)
		if resp.StatusCode == http.StatusUnauthorized {
			detail += "; check the client id and client secret"
		}
		return "", &Error{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &Error{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Detail: "malformed token response", Err: err}
	}
	if tok.AccessToken == "" {
		return "", &Error{Kind: KindAuth, Op: op, StatusCode: resp.StatusCode, Detail: "no access token in response"}
	}
	return tok.AccessToken, nil
}

// NewSession acquires a fresh token and returns a session bound to it.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(token)
	oc.BaseURL = strings.TrimRight(c.cfg.APIURL, "/")
	oc.HTTPClient = c.apiHTTP

	return &Session{
		api:        openai.NewClientWithConfig(oc),
		model:      c.cfg.Model,
		restricted: c.restricted,
		logger:     c.logger,
	}, nil
}

// Open acquires a session for one pipeline run.
func (c *Client) Open(ctx context.Context) (Completer, error) {
	s, err := c.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Session performs completion calls with a single bearer token.
type Session struct {
	api        *openai.Client
	model      string
	restricted *RestrictionDetector
	logger     zerolog.Logger
}

// Complete issues exactly one chat-completion request.
func (s *Session) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	const op = "completion"

	start := time.Now()
	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	})
	if err != nil {
		return "", classifyCompletionError(err)
	}

	s.logger.Debug().
		Int("input_chars", len([]rune(userText))).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("completion received")

	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindAPI, Op: op, StatusCode: http.StatusOK, Detail: "empty response: no choices"}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &Error{Kind: KindAPI, Op: op, StatusCode: http.StatusOK, Detail: "no completion text in response"}
	}

	if phrase, ok := s.restricted.Match(content); ok {
		s.logger.Warn().Str("phrase", phrase).Msg("completion matched a restriction phrase")
		return "", &Error{
			Kind:       KindRestriction,
			Op:         op,
			StatusCode: http.StatusOK,
			Detail:     "the service restricted the answer; narrow the request scope",
		}
	}

	return content, nil
}

// classifyCompletionError maps go-openai and transport errors onto Kind.
func classifyCompletionError(err error) error {
	const op = "completion"

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindAPI, Op: op, StatusCode: apiErr.HTTPStatusCode, Detail: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindAPI, Op: op, StatusCode: reqErr.HTTPStatusCode, Detail: reqErr.Error()}
	}
	if isTransportError(err) {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return &Error{Kind: KindAPI, Op: op, Detail: "unreadable response", Err: err}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// errorDetail extracts a readable message from an error body.
func errorDetail(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
		Code             any    `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			return text
		}
		return "no error details"
	}

	msg := payload.Message
	if msg == "" {
		msg = payload.ErrorDescription
	}
	if msg == "" {
		msg = payload.Error
	}
	if payload.Code != nil {
		if msg == "" {
			return fmt.Sprintf("code %v", payload.Code)
		}
		return fmt.Sprintf("code %v: %s", payload.Code, msg)
	}
	if msg == "" {
		if text := strings.TrimSpace(string(body)); text != "" {
			return text
		}
		return "no error details"
	}
	return msg
}
