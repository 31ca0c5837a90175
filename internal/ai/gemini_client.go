package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"tracebrief/internal/config"
	"tracebrief/internal/logger"
	"tracebrief/internal/telemetry"
)

// ErrUnavailable is returned when the model cannot be reached after retries
// or the circuit breaker is open. Callers surface it as a user-visible
// "try again" error; it never aborts the process.
var ErrUnavailable = errors.New("language model unavailable")

type Client struct {
	cfg          *config.Config
	client       *genai.Client
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
}

type TokenCounter struct {
	mu              sync.Mutex
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
	limits          RateLimits
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewClient(cfg *config.Config) (*Client, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(cfg.GeminiTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10+1)

	return &Client{
		cfg:          cfg,
		client:       client,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// GenerateJSON requests a structured JSON completion (brief generation).
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	text, _, err := c.generate(ctx, prompt, 0.5, true)
	return text, err
}

// GenerateText requests a plain-text completion (grounded Q&A). The second
// return value is the token cost reported by the API, estimated when absent.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, int, error) {
	return c.generate(ctx, prompt, 0.2, false)
}

func (c *Client) generate(ctx context.Context, prompt string, temperature float32, jsonOutput bool) (string, int, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	estimatedTokens := len(prompt) / 4
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", c.cfg.GeminiModel),
		attribute.Bool("gemini.json_output", jsonOutput),
	)

	if !c.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, errors.New("rate limit exceeded: wait before retry")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", 0, err
	}

	// Quota exhaustion (429) gets exponential backoff; any other transient
	// failure gets a single retry before surfacing the error.
	const quotaAttempts = 3
	baseDelay := 5 * time.Second

	var lastErr error
	for attempt := 0; attempt < quotaAttempts; attempt++ {
		text, tokens, err := c.call(ctx, prompt, temperature, jsonOutput)
		if err == nil {
			span.SetAttributes(attribute.Int("gemini.actual_tokens", tokens))
			c.tokenCounter.RecordUsage(tokens, 1)
			telemetry.RecordTokensUsed(int64(tokens), c.cfg.GeminiModel)
			return text, tokens, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", 0, ErrUnavailable
		}

		if isQuotaError(err) {
			if attempt < quotaAttempts-1 {
				delay := baseDelay << attempt
				logger.Warn("Gemini quota exceeded, backing off", "delay", delay.String(), "attempt", attempt+1)
				if err := sleepCtx(ctx, delay); err != nil {
					return "", 0, err
				}
				continue
			}
			break
		}

		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if attempt == 0 {
			continue // one retry on transient failures
		}
		break
	}

	span.SetAttributes(attribute.Bool("gemini.error", true), attribute.String("gemini.error_message", lastErr.Error()))
	return "", 0, errors.Join(ErrUnavailable, lastErr)
}

func (c *Client) call(ctx context.Context, prompt string, temperature float32, jsonOutput bool) (string, int, error) {
	if c.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.LLMTimeout)*time.Second)
		defer cancel()
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		model := c.client.GenerativeModel(c.cfg.GeminiModel)
		model.SetTemperature(temperature)
		model.SetMaxOutputTokens(8192)
		if jsonOutput {
			model.ResponseMIMEType = "application/json"
		}

		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		return "", 0, err
	}

	resp := result.(*genai.GenerateContentResponse)
	text := extractText(resp)
	if text == "" {
		return "", 0, errors.New("empty response from model")
	}
	return text, extractTokenUsage(resp), nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					sb.WriteString(string(text))
				}
			}
		}
	}
	return sb.String()
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	// Fallback: ~4 characters per token
	estimated := len(extractText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func isQuotaError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "resource exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close the client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
