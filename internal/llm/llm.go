// Package llm is the serverless backend: it implements the same three
// formulation operations as the streaming client, but directly against
// the Anthropic API. Used when no formulation server is configured.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/craftlabs/forma/internal/models"
)

// Client wraps the Anthropic API for formulation operations.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildAnalyzePrompt constructs the prompts for product analysis.
func buildAnalyzePrompt(req models.OperationRequest) (system string, user string) {
	system = `You analyze consumer product references for a formulation assistant. Return ONLY a JSON object with these fields:
- "summary": one sentence describing the product type and its positioning
- "ingredients": array of the ingredients most likely present, INCI-style names where applicable
- "attributes": array of notable product attributes (texture, claims, target market)

Rules:
- Base the analysis on the reference and description only; do not invent certifications
- Keep each ingredient name short, no explanations inline
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Product reference: ")
	sb.WriteString(req.InputRef)
	sb.WriteString("\n")
	if req.Category != "" {
		sb.WriteString("Category: ")
		sb.WriteString(req.Category)
		sb.WriteString("\n")
	}
	if req.PromptText != "" {
		sb.WriteString("\nUser description:\n")
		sb.WriteString(req.PromptText)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// buildSuggestPrompt constructs the prompts for suggestion generation.
func buildSuggestPrompt(req models.OperationRequest) (system string, user string) {
	system = `You propose formulation directions for a product development team. Return ONLY a JSON array of 2-4 objects with these fields:
- "title": short name for the direction (e.g. "Budget variant")
- "text": one- or two-sentence formulation brief a chemist could start from
- "rationale": why this direction fits the analyzed product

Rules:
- Directions must be meaningfully different from each other
- Respect the cost target when one is given (lower cost = simpler actives)
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Product analysis:\n")
	sb.WriteString(req.PromptText)
	sb.WriteString("\n")
	if req.Category != "" {
		sb.WriteString("\nTarget category: ")
		sb.WriteString(req.Category)
		sb.WriteString("\n")
	}
	if req.CostTarget > 0 {
		sb.WriteString(fmt.Sprintf("\nCost target per unit: %.2f\n", req.CostTarget))
	}
	user = sb.String()
	return
}

// buildSynthesizePrompt constructs the prompts for final synthesis.
func buildSynthesizePrompt(req models.OperationRequest) (system string, user string) {
	system = `You write a complete draft formulation from a brief. Return ONLY a JSON object with one field:
- "body": the formulation as plain text: an ingredient list with approximate percentages, followed by short process notes

Rules:
- Percentages should sum to roughly 100
- Flag any ingredient pairings that need compatibility testing in the process notes
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Formulation brief:\n")
	sb.WriteString(req.PromptText)
	sb.WriteString("\n")
	if req.Category != "" {
		sb.WriteString("\nCategory: ")
		sb.WriteString(req.Category)
		sb.WriteString("\n")
	}
	if req.CostTarget > 0 {
		sb.WriteString(fmt.Sprintf("\nCost target per unit: %.2f\n", req.CostTarget))
	}
	user = sb.String()
	return
}

// Analyze implements workflow.Runner against the Anthropic API.
func (c *Client) Analyze(ctx context.Context, req models.OperationRequest) (*models.AnalysisResult, error) {
	system, user := buildAnalyzePrompt(req)
	text, err := c.complete(ctx, system, user, 2048)
	if err != nil {
		return nil, err
	}
	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &result, nil
}

// Suggest implements workflow.Runner against the Anthropic API.
func (c *Client) Suggest(ctx context.Context, req models.OperationRequest) ([]models.Suggestion, error) {
	system, user := buildSuggestPrompt(req)
	text, err := c.complete(ctx, system, user, 2048)
	if err != nil {
		return nil, err
	}
	var suggestions []models.Suggestion
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return suggestions, nil
}

// Synthesize implements workflow.Runner against the Anthropic API.
func (c *Client) Synthesize(ctx context.Context, req models.OperationRequest) (*models.Formulation, error) {
	system, user := buildSynthesizePrompt(req)
	text, err := c.complete(ctx, system, user, 4096)
	if err != nil {
		return nil, err
	}
	var formulation models.Formulation
	if err := json.Unmarshal([]byte(text), &formulation); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	formulation.InputRef = req.InputRef
	formulation.Category = req.Category
	formulation.Prompt = req.PromptText
	return &formulation, nil
}

// complete sends one prompt pair and returns the stripped text response.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFences(text), nil
}

// stripFences removes markdown code fencing around a JSON response.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
