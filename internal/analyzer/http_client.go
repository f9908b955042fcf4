package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/diagramq/diagramq/internal/backoff"
	"github.com/diagramq/diagramq/internal/tracing"
)

// Config holds settings for the OpenAI-compatible chat completions client.
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	MaxRetries         int
	BackoffPolicy      string
	BackoffBaseSeconds int
	BackoffMaxSeconds  int
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// HTTPClient talks to an OpenAI-compatible /v1/chat/completions endpoint.
// One instance is shared by every worker, so it must be goroutine-safe.
type HTTPClient struct {
	cfg Config
	hc  *http.Client
	log *slog.Logger

	// rngMu serializes jitter draws; *rand.Rand is not safe for
	// concurrent use and workers retry independently.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewHTTPClient builds a client from cfg, applying defaults for anything unset.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffPolicy == "" {
		cfg.BackoffPolicy = backoff.PolicyExpFullJitter
	}
	if cfg.BackoffBaseSeconds <= 0 {
		cfg.BackoffBaseSeconds = 1
	}
	if cfg.BackoffMaxSeconds <= 0 {
		cfg.BackoffMaxSeconds = 30
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &HTTPClient{
		cfg: cfg,
		hc:  hc,
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Analyze sends the op's prompt to the model, retries transient failures,
// and returns the schema-validated response.
func (c *HTTPClient) Analyze(ctx context.Context, req Request) (*Response, error) {
	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt - 1)
			c.log.Warn("analyzer retrying",
				slog.String("op", string(req.Op)),
				slog.Int("attempt", attempt),
				slog.Int("delay_seconds", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(delay) * time.Second):
			}
		}

		resp, retryable, err := c.do(ctx, req.Op, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("analyzer %s failed after %d attempts: %w", req.Op, c.cfg.MaxRetries+1, lastErr)
}

// retryDelay returns the backoff in seconds for a completed failure count.
func (c *HTTPClient) retryDelay(attempts int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return backoff.Compute(c.cfg.BackoffPolicy, c.cfg.BackoffBaseSeconds, c.cfg.BackoffMaxSeconds, attempts, c.rng)
}

func (c *HTTPClient) do(ctx context.Context, op Op, body []byte) (*Response, bool, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	tracing.InjectHeaders(ctx, httpReq.Header)

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("analyzer request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read analyzer response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("analyzer returned status %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("analyzer returned status %d: %s", httpResp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, false, fmt.Errorf("decode chat response: %w", err)
	}
	if chat.Error != nil {
		return nil, false, fmt.Errorf("analyzer error: %s", chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, true, errors.New("analyzer returned no choices")
	}

	content := extractJSON(chat.Choices[0].Message.Content)
	resp, err := validateResponse(op, []byte(content))
	if err != nil {
		// Malformed model output occasionally fixes itself on retry.
		return nil, true, err
	}
	return resp, false, nil
}

func (c *HTTPClient) buildRequest(req Request) ([]byte, error) {
	prompt, err := promptFor(req)
	if err != nil {
		return nil, err
	}

	parts := []contentPart{{Type: "text", Text: prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(req.Image)},
		})
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: []contentPart{{Type: "text", Text: systemPrompt}}},
			{Role: "user", Content: parts},
		},
		Temperature: 0,
	}
	return json.Marshal(body)
}

const systemPrompt = "You are an expert reviewer of UML class diagrams. " +
	"Always answer with a single JSON object and nothing else."

func promptFor(req Request) (string, error) {
	switch req.Op {
	case OpAnalyzeStructure:
		if len(req.Image) == 0 {
			return "", errors.New("analyze-structure requires an image")
		}
		return "Extract the structure of the UML class diagram in the attached image. " +
			"Respond with JSON of the form " +
			`{"structure": {"diagram_type": "...", "elements": [{"type": "class|interface|enum", "name": "...", "attributes": [], "methods": []}], "relationships": [{"type": "...", "source": "...", "target": "..."}]}}.`, nil
	case OpDetectErrors:
		structure, err := json.Marshal(req.Structure)
		if err != nil {
			return "", fmt.Errorf("encode structure: %w", err)
		}
		return "Review this UML class diagram structure for design errors " +
			"(naming, missing types, wrong relationship directions, redundant associations):\n" +
			string(structure) + "\n" +
			"Respond with JSON of the form " +
			`{"analysis": {"findings": [{"code": "...", "severity": "high|medium|low", "message": "...", "element": "..."}], "summary": {"error_count": 0, "severity_level": "none|low|medium|high"}}}.`, nil
	case OpGenerateCorrection:
		analysis, err := json.Marshal(req.Analysis)
		if err != nil {
			return "", fmt.Errorf("encode analysis: %w", err)
		}
		return "Given this PlantUML source:\n```\n" + req.Source + "\n```\n" +
			"and these findings:\n" + string(analysis) + "\n" +
			"produce a corrected version of the diagram. Respond with JSON of the form " +
			`{"correction": {"corrected_plantuml": "...", "notes": ["..."]}}.`, nil
	default:
		return "", fmt.Errorf("unknown analyzer op %q", req.Op)
	}
}

// dataURL encodes image bytes as a base64 data URL, sniffing JPEG vs PNG.
func dataURL(img []byte) string {
	mime := "image/png"
	if len(img) >= 2 && img[0] == 0xFF && img[1] == 0xD8 {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}

// extractJSON strips markdown code fences that models often wrap JSON in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	// Fall back to the outermost braces when the model adds prose around the object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
