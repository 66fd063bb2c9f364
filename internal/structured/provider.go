package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"golang.org/x/time/rate"

	"github.com/vinayprograms/omnisupply/internal/metrics"
)

const systemPrompt = `You are a supply-chain analytics assistant inside an automated pipeline.
Reply with a single JSON object and nothing else. The object must validate against the
JSON Schema given with each request. Do not wrap the object in prose.`

// ProviderCaller implements Caller on top of an agentkit LLM provider.
type ProviderCaller struct {
	provider llm.Provider
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// NewProviderCaller creates a caller. requestsPerMinute <= 0 disables client-side
// rate limiting.
func NewProviderCaller(provider llm.Provider, requestsPerMinute float64) *ProviderCaller {
	c := &ProviderCaller{
		provider: provider,
		logger:   logging.New().WithComponent("structured"),
	}
	if requestsPerMinute > 0 {
		burst := int(requestsPerMinute / 10)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), burst)
	}
	return c
}

// Call sends prompt with schema instructions and decodes the validated reply into out.
func (c *ProviderCaller) Call(ctx context.Context, prompt string, schema *Schema, out any) error {
	err := c.call(ctx, prompt, schema, out)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.ObserveStructuredCall(schema.Name, outcome)
	return err
}

func (c *ProviderCaller) call(ctx context.Context, prompt string, schema *Schema, out any) error {
	fail := func(kind Kind, err error) error {
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		return &CallError{Kind: kind, Schema: schema.Name, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(KindCanceled, err)
		}
	}

	start := time.Now()
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(prompt, schema)},
		},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fail(KindCanceled, err)
		}
		c.logger.Warn("structured_call_failed", map[string]interface{}{
			"schema": schema.Name,
			"error":  err.Error(),
		})
		return fail(KindTransport, err)
	}

	raw, err := extractJSON(resp.Content)
	if err != nil {
		return fail(KindExtract, err)
	}
	if err := schema.ValidateJSON([]byte(raw)); err != nil {
		return fail(KindSchema, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fail(KindDecode, err)
	}

	c.logger.Debug("structured_call_complete", map[string]interface{}{
		"schema":        schema.Name,
		"duration_ms":   time.Since(start).Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	return nil
}

func buildPrompt(prompt string, schema *Schema) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\n")
	if schema.Description != "" {
		fmt.Fprintf(&sb, "Respond with %s.\n", schema.Description)
	}
	sb.WriteString("JSON Schema:\n")
	sb.WriteString(schema.Document())
	return sb.String()
}
