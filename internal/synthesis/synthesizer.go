// Package synthesis calls an external language-model service to produce a
// structured reaction outcome from reactants, environment, and factual
// context.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/awebisam/chemezy/internal/facts"
	"github.com/awebisam/chemezy/internal/storage"
)

// Request carries everything the synthesizer needs for one reaction.
type Request struct {
	Reactants   []string
	Environment string
	Catalyst    string
	Facts       *facts.Context
}

// Outcome is the validated, structured synthesis result.
type Outcome struct {
	Products    []storage.Product
	Effects     []string
	StateChange string
	Explanation string
}

// Synthesizer produces a reaction outcome. Implementations are called at
// most once per cache miss and must respect the context deadline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req *Request) (*Outcome, error)
}

// Config holds the chat-completions client configuration.
type Config struct {
	APIKey      string        `json:"-" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model" yaml:"model"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
		Timeout:   30 * time.Second,
	}
}

// OpenAIClient implements Synthesizer against a chat-completions API.
type OpenAIClient struct {
	config Config
	client *http.Client
}

// NewOpenAIClient creates a chat-completions backed synthesizer.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &OpenAIClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

const systemPrompt = "You are a chemistry reasoning engine. Given reactants, environmental " +
	"conditions, and factual compound data, predict the reaction outcome. Respond with a " +
	"single valid JSON object and nothing else, shaped as: " +
	`{"products":[{"formula":str,"name":str,"phase":str}],"effects":[str],"state_change":str|null,"explanation":str}`

// Synthesize performs one chat-completions call and validates the model's
// JSON output into the closed outcome shape.
func (c *OpenAIClient) Synthesize(ctx context.Context, req *Request) (*Outcome, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type reqBody struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
	}
	body := reqBody{
		Model: c.config.Model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("synthesis http %d: %s", resp.StatusCode, string(respRaw))
	}

	content := gjson.GetBytes(respRaw, "choices.0.message.content").String()
	if content == "" {
		return nil, fmt.Errorf("synthesis response missing content")
	}

	return ParseOutcome(content)
}

// buildPrompt serializes the request into the user message.
func buildPrompt(req *Request) (string, error) {
	factsJSON := "{}"
	if req.Facts != nil {
		raw, err := json.MarshalIndent(req.Facts.Facts, "", "  ")
		if err != nil {
			return "", err
		}
		factsJSON = string(raw)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reactants: %s\n", strings.Join(req.Reactants, ", "))
	fmt.Fprintf(&b, "Environment: %s\n", req.Environment)
	if req.Catalyst != "" {
		fmt.Fprintf(&b, "Catalyst: %s\n", req.Catalyst)
	}
	fmt.Fprintf(&b, "Compound facts:\n%s\n", factsJSON)
	return b.String(), nil
}

// ParseOutcome extracts the structured outcome from model output. Models
// sometimes wrap JSON in prose or code fences; extraction is lenient but
// validation of the final shape is strict.
func ParseOutcome(content string) (*Outcome, error) {
	jsonText := extractJSON(content)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object in synthesis output")
	}

	parsed := gjson.Parse(jsonText)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("synthesis output is not a JSON object")
	}

	outcome := &Outcome{
		StateChange: parsed.Get("state_change").String(),
		Explanation: parsed.Get("explanation").String(),
	}
	if outcome.Explanation == "" {
		// Older prompt revisions used "description"
		outcome.Explanation = parsed.Get("description").String()
	}

	products := parsed.Get("products")
	if !products.IsArray() {
		return nil, fmt.Errorf("synthesis output missing products array")
	}
	for _, p := range products.Array() {
		product := storage.Product{
			Formula: p.Get("formula").String(),
			Name:    p.Get("name").String(),
			Phase:   p.Get("phase").String(),
		}
		if product.Phase == "" {
			product.Phase = p.Get("state").String()
		}
		if product.Formula == "" {
			return nil, fmt.Errorf("synthesis product missing formula")
		}
		outcome.Products = append(outcome.Products, product)
	}

	for _, e := range parsed.Get("effects").Array() {
		if tag := strings.TrimSpace(e.String()); tag != "" {
			outcome.Effects = append(outcome.Effects, tag)
		}
	}

	if outcome.Explanation == "" {
		return nil, fmt.Errorf("synthesis output missing explanation")
	}
	return outcome, nil
}

// extractJSON returns the first balanced top-level JSON object in s.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// Mock is a Synthesizer for tests.
type Mock struct {
	Outcome *Outcome
	Err     error
	Calls   int
	Delay   time.Duration
}

// Synthesize returns the configured outcome or error.
func (m *Mock) Synthesize(ctx context.Context, req *Request) (*Outcome, error) {
	m.Calls++
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Outcome != nil {
		return m.Outcome, nil
	}
	return &Outcome{
		Products:    []storage.Product{{Formula: "H2O", Name: "Water", Phase: "liquid"}},
		Effects:     []string{"mixing"},
		Explanation: "mock synthesis outcome",
	}, nil
}

// Fallback is a deterministic stub used when no synthesizer is configured
// (development mode). Each reactant passes through unchanged.
type Fallback struct{}

// Synthesize produces a deterministic placeholder outcome.
func (f *Fallback) Synthesize(ctx context.Context, req *Request) (*Outcome, error) {
	products := make([]storage.Product, 0, len(req.Reactants))
	for _, r := range req.Reactants {
		products = append(products, storage.Product{Formula: r, Name: r, Phase: "unknown"})
	}
	return &Outcome{
		Products: products,
		Effects:  []string{"mixing"},
		Explanation: fmt.Sprintf(
			"Mixture of %s under %s conditions. Configure a synthesis backend for full predictions.",
			strings.Join(req.Reactants, ", "), req.Environment,
		),
	}, nil
}
