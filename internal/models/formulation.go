package models

import "time"

// OperationRequest is the payload sent to each formulation endpoint.
type OperationRequest struct {
	InputRef   string  `json:"input_ref"`
	PromptText string  `json:"prompt_text,omitempty"`
	Category   string  `json:"category,omitempty"`
	CostTarget float64 `json:"cost_target,omitempty"`
}

// AnalysisResult holds what the analysis operation learned about the
// uploaded product image.
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	Ingredients []string `json:"ingredients,omitempty"`
	Attributes  []string `json:"attributes,omitempty"`
}

// Suggestion is one candidate formulation direction offered to the user.
type Suggestion struct {
	Title     string `json:"title"`
	Text      string `json:"text"`
	Rationale string `json:"rationale,omitempty"`
}

// Formulation is the synthesized end product of one workflow run.
type Formulation struct {
	ID        string    `json:"id,omitempty"`
	InputRef  string    `json:"input_ref,omitempty"`
	Category  string    `json:"category,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
