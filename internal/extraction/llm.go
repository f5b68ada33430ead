package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a real-estate underwriting analyst extracting listing facts and local market data for an institutional investor. " +
	"Never invent precision: when a value is not stated in the source, estimate it from comparable local data and flag it as estimated. Respond with strict JSON only."

const maxAttempts = 3

type llmFailureClass int

const (
	failureNone llmFailureClass = iota
	failureParse
	failureSchema
	failureEmpty
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

type LLMCaller interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

type AnthropicCaller struct {
	messages AnthropicMessager
	model    anthropic.Model
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// NewAnthropicCallerFromEnv reads ANTHROPIC_API_KEY and, optionally,
// PROPQUANT_MODEL.
func NewAnthropicCallerFromEnv() (*AnthropicCaller, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := anthropic.ModelClaudeSonnet4_20250514
	if m := strings.TrimSpace(os.Getenv("PROPQUANT_MODEL")); m != "" {
		model = anthropic.Model(m)
	}
	return &AnthropicCaller{messages: newAnthropicClient(apiKey), model: model}, nil
}

func (a *AnthropicCaller) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

type StageAttemptMetrics struct {
	Attempts       int `json:"attempts"`
	ContentRetries int `json:"content_retries"`
	Repairs        int `json:"repairs"`
}

type StageExecutor struct {
	caller LLMCaller
	sleep  func(time.Duration)
}

func NewStageExecutor(caller LLMCaller) *StageExecutor {
	return &StageExecutor{caller: caller, sleep: time.Sleep}
}

// Run asks the model for JSON matching out. Each attempt decodes into a fresh
// value that replaces *out before validate runs, so nothing from a rejected
// response survives into the next attempt. Malformed JSON is repaired locally
// before the model is asked again; validation failures are fed back verbatim.
func (e *StageExecutor) Run(ctx context.Context, stageName, prompt string, out any, validate func() error) (StageAttemptMetrics, error) {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return StageAttemptMetrics{}, fmt.Errorf("%s: out must be a non-nil pointer, got %T", stageName, out)
	}
	target = target.Elem()

	metrics := StageAttemptMetrics{}
	feedback := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.Attempts = attempt
		fullPrompt := prompt + "\n\nReply with a single JSON object and no commentary."
		if feedback != "" {
			fullPrompt += "\n\n" + feedback
		}

		raw, err := e.caller.GenerateJSON(ctx, fullPrompt)
		if err != nil {
			class := classifyTransportError(err)
			if class == failureTimeout || class == failureRateLimit || class == failureServer {
				if attempt < maxAttempts && ctx.Err() == nil {
					e.sleep(backoffDelay(attempt, class))
					continue
				}
			}
			return metrics, fmt.Errorf("%s transport failure: %w", stageName, err)
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "The last reply had no content. Return the requested JSON object."
				continue
			}
			return metrics, fmt.Errorf("%s failed: empty response", stageName)
		}

		decoded, repaired, err := decodeFresh(stripCodeFences(raw), target.Type())
		if err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = "The last reply could not be parsed as JSON even after repair. Return one JSON object using the schema field names."
				continue
			}
			return metrics, fmt.Errorf("%s failed json parse: %w", stageName, err)
		}
		if repaired {
			metrics.Repairs++
		}
		target.Set(decoded)

		if err := validate(); err != nil {
			if attempt < maxAttempts {
				metrics.ContentRetries++
				feedback = fmt.Sprintf("The last reply was rejected by the underwriting checks: %s. Correct those fields and return the full object again.", err)
				continue
			}
			return metrics, fmt.Errorf("%s failed validation: %w", stageName, err)
		}
		return metrics, nil
	}
	return metrics, fmt.Errorf("%s failed after retries", stageName)
}

// decodeFresh unmarshals s into a new zero value of t, falling back to a
// repaired copy of s. A failed first pass never leaks into the repaired value.
func decodeFresh(s string, t reflect.Type) (reflect.Value, bool, error) {
	v := reflect.New(t)
	err := json.Unmarshal([]byte(s), v.Interface())
	if err == nil {
		return v.Elem(), false, nil
	}
	fixed, rerr := jsonrepair.RepairJSON(s)
	if rerr != nil {
		return reflect.Value{}, false, err
	}
	v = reflect.New(t)
	if json.Unmarshal([]byte(fixed), v.Interface()) != nil {
		return reflect.Value{}, false, err
	}
	return v.Elem(), true, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func classifyTransportError(err error) llmFailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return failureRateLimit
		case apiErr.StatusCode >= 500:
			return failureServer
		case apiErr.StatusCode >= 400:
			return failureClient
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 5") || strings.Contains(msg, "status=5") || strings.Contains(msg, "server error"):
		return failureServer
	case strings.Contains(msg, "status code: 4") || strings.Contains(msg, "status=4"):
		return failureClient
	default:
		return failureServer
	}
}

// backoffDelay waits longer after a rate limit than after a timeout or 5xx.
func backoffDelay(attempt int, class llmFailureClass) time.Duration {
	if class == failureRateLimit {
		return time.Duration(attempt) * 8 * time.Second
	}
	if attempt <= 1 {
		return 1500 * time.Millisecond
	}
	return 4 * time.Second
}
