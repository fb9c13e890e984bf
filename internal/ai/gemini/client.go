package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/logger"
	"github.com/spigell/referral-matcher/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	ProviderName = "gemini"

	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200

	baseBackoff   = time.Second
	maxRetryDelay = 30 * time.Second
)

// sleep waits for d or until ctx is done.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Options configures a Generator.
type Options struct {
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// Generator wraps the Google GenAI client to provide simple prompt-based interactions.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.WithCommonFields(log, ProviderName, model),
	}, nil
}

// Generate implements ai.Generator.
func (g *Generator) Generate(ctx context.Context, req ai.Request) (ai.Response, error) {
	if g == nil || g.chats == nil {
		return ai.Response{}, errors.New("gemini generator is not initialized")
	}

	message := strings.TrimSpace(req.Prompt)
	if message == "" {
		return ai.Response{}, errors.New("prompt must not be empty")
	}

	model := g.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = m
	}

	config := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	g.log().Debug("gemini generate content request",
		zap.String("model", model),
		zap.Int("prompt_length", len([]rune(message))),
		zap.String("prompt_preview", utils.TruncateForLog(message, g.maxLogLen)),
	)

	var lastErr error
	for attempt := 0; attempt < g.attempts(); attempt++ {
		if attempt > 0 {
			delay := retryDelay(lastErr, attempt)
			g.log().Warn("retrying gemini request",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := waitFor(ctx, delay); err != nil {
				return ai.Response{}, err
			}
		}

		resp, err := g.send(ctx, model, config, message)
		if err == nil {
			g.log().Debug("gemini generate content response",
				zap.Int("response_length", len([]rune(resp.Text))),
				zap.String("response_preview", utils.TruncateForLog(resp.Text, g.maxLogLen)),
				zap.Int("total_tokens", resp.TotalTokens),
			)
			return resp, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return ai.Response{}, lastErr
}

func (g *Generator) send(ctx context.Context, model string, config *genai.GenerateContentConfig, message string) (ai.Response, error) {
	chat, err := g.chats.Create(ctx, model, config, nil)
	if err != nil {
		return ai.Response{}, fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return ai.Response{}, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return ai.Response{}, errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return ai.Response{}, errors.New("gemini api returned empty response")
	}

	out := ai.Response{Text: output}
	if resp.UsageMetadata != nil {
		out.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (g *Generator) attempts() int {
	if g.maxRetries <= 0 {
		return 1
	}
	return g.maxRetries
}

func (g *Generator) log() *zap.Logger {
	if g.logger == nil {
		return zap.NewNop()
	}
	return g.logger
}

func (g *Generator) Provider() string {
	return ProviderName
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return sleep(ctx, d)
}

func retryable(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch {
	case apiErr.Code >= http.StatusInternalServerError:
		return true
	case apiErr.Code == http.StatusTooManyRequests:
		delay, ok := quotaDelay(apiErr)
		return !ok || delay <= maxRetryDelay
	default:
		return false
	}
}

func retryDelay(err error, attempt int) time.Duration {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if delay, ok := quotaDelay(apiErr); ok {
			return delay
		}
	}
	return baseBackoff << (attempt - 1)
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

// quotaDelay reads the server suggested delay from a quota error, either
// from the RetryInfo detail or from the message text.
func quotaDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		raw, ok := detail["retryDelay"].(string)
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d, true
		}
	}

	if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
		seconds, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return time.Duration(seconds * float64(time.Second)), true
		}
	}
	return 0, false
}
