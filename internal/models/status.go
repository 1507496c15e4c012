package models

import "encoding/json"

// Kind identifies the phase reported by a streamed status update.
type Kind string

const (
	KindThinking    Kind = "thinking"
	KindAnalyzing   Kind = "analyzing"
	KindResearching Kind = "researching"
	KindFormulating Kind = "formulating"
	KindFinalizing  Kind = "finalizing"
	KindComplete    Kind = "complete"
	KindError       Kind = "error"
)

// Known reports whether k is one of the enumerated kinds. Unknown kinds
// are still accepted from the wire and treated as in-progress, so new
// server-side phases don't break older clients.
func (k Kind) Known() bool {
	switch k {
	case KindThinking, KindAnalyzing, KindResearching, KindFormulating, KindFinalizing, KindComplete, KindError:
		return true
	}
	return false
}

// Terminal reports whether k ends a stream session.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// StatusUpdate is one typed event decoded from the formulation stream.
// Complete updates carry Payload; error updates carry Error; everything
// else is an in-progress notification.
type StatusUpdate struct {
	Status   Kind            `json:"status"`
	Message  string          `json:"message,omitempty"`
	Progress int             `json:"progress,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}
