package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/po-extractor/internal/common"
	"github.com/joseph-ayodele/po-extractor/internal/llm"
)

const systemPrompt = "You are an assistant that reads purchase orders. Return ONLY a valid JSON object. Do not include explanations or Markdown formatting."

// ExtractFields implements llm.FieldExtractor: one call pulls the customer's
// labels verbatim, a second maps them onto the canonical keys.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.ExtractResult, error) {
	if req.Profile == nil {
		return llm.ExtractResult{}, errors.New("extract: profile is required")
	}
	rid := req.DocumentID
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()
	res := llm.ExtractResult{Model: c.cfg.Model}

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"customer", req.Profile.Code,
		"doc_id", common.DocumentIDFromContext(ctx),
		"text_len", len(req.Text),
	)

	initial, tokens, err := c.complete(ctx, llm.BuildExtractPrompt(req.Profile, req.Text))
	if err != nil {
		c.log.Error("llm.extract.http_error", "req_id", rid, "customer", common.CustomerFromContext(ctx), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return res, fmt.Errorf("extract pass: %w", err)
	}
	res.Initial = initial
	res.Tokens += tokens

	refined, tokens, err := c.complete(ctx, llm.BuildRefinePrompt(req.Profile, initial))
	if err != nil {
		c.log.Error("llm.refine.http_error", "req_id", rid, "customer", common.CustomerFromContext(ctx), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return res, fmt.Errorf("refine pass: %w", err)
	}
	res.Tokens += tokens

	cleaned, dropped, err := llm.NormalizeAndSanitizeJSON([]byte(refined), c.log)
	if err != nil {
		c.log.Error("llm.refine.sanitize_failed", "req_id", rid, "error", err, "content", refined)
		// hand the raw text on so the reconciler can report a format error
		res.Refined = []byte(refined)
		return res, nil
	}
	res.Sanitized = dropped

	if err := llm.ValidateJSONAgainstSchema(llm.BuildRefinedRecordSchema(), cleaned); err != nil {
		c.log.Error("llm.refine.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return res, common.NewAppError(common.CodeExtractionFormat, "schema validation failed",
			fmt.Errorf("%w: %w", common.ErrExtractionFormat, err))
	}
	res.Refined = cleaned

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"customer", req.Profile.Code,
		"tokens", res.Tokens,
		"sanitized", len(dropped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, err
	}
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, errors.New("no choices in openai response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), resp.Usage.TotalTokens, nil
}
