// Package api is a development formulation server: it speaks the same
// newline-delimited status protocol the real service does, with canned
// results, so the client pipeline can be exercised end to end without
// credentials. Integration tests run it under httptest.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/craftlabs/forma/internal/formclient"
	"github.com/craftlabs/forma/internal/models"
)

// Server provides the streaming formulation endpoints.
type Server struct {
	logger    *slog.Logger
	stepDelay time.Duration // pacing between frames; zero for tests
}

// NewServer creates a dev server. stepDelay spaces the streamed frames so
// the client's progress rendering is visible in demos.
func NewServer(logger *slog.Logger, stepDelay time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, stepDelay: stepDelay}
}

// Router returns an http.Handler for the streaming routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+formclient.PathAnalyze, s.analyze)
	mux.HandleFunc("POST "+formclient.PathSuggestions, s.suggestions)
	mux.HandleFunc("POST "+formclient.PathSynthesize, s.synthesize)

	return mux
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// decodeRequest parses and validates the operation payload.
func decodeRequest(w http.ResponseWriter, r *http.Request) (models.OperationRequest, bool) {
	var req models.OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return req, false
	}
	if req.InputRef == "" {
		writeError(w, http.StatusBadRequest, "input_ref is required")
		return req, false
	}
	return req, true
}

// streamUpdates writes each update as one protocol frame, flushing after
// every write so chunks reach the client as they happen.
func (s *Server) streamUpdates(w http.ResponseWriter, updates []models.StatusUpdate) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	for i, update := range updates {
		if i > 0 && s.stepDelay > 0 {
			time.Sleep(s.stepDelay)
		}
		data, err := json.Marshal(update)
		if err != nil {
			s.logger.Error("encode status update", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n", data)
		flusher.Flush()
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	s.logger.Info("analyze", "input_ref", req.InputRef, "category", req.Category)

	category := req.Category
	if category == "" {
		category = "general"
	}
	payload := models.AnalysisResult{
		Summary:     fmt.Sprintf("%s product based on %s", category, req.InputRef),
		Ingredients: []string{"aqua", "glycerin", "cetearyl alcohol"},
		Attributes:  []string{"lightweight texture", "mass-market positioning"},
	}

	s.streamUpdates(w, []models.StatusUpdate{
		{Status: models.KindThinking, Message: "Reading the reference image", Progress: 10},
		{Status: models.KindAnalyzing, Message: "Analyzing product composition", Progress: 45},
		{Status: models.KindAnalyzing, Message: "Extracting attributes", Progress: 75},
		{Status: models.KindComplete, Message: "Analysis complete", Progress: 100, Payload: mustJSON(payload)},
	})
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	s.logger.Info("suggestions", "input_ref", req.InputRef)

	payload := []models.Suggestion{
		{
			Title:     "Budget variant",
			Text:      "Match the reference with a simplified active system and commodity emulsifiers",
			Rationale: "Hits the cost target with minimal reformulation risk",
		},
		{
			Title:     "Premium variant",
			Text:      "Upgrade the reference with encapsulated actives and a richer emollient blend",
			Rationale: "Differentiates on sensory profile and claims",
		},
		{
			Title:     "Clean-label variant",
			Text:      "Rebuild the reference on naturally derived surfactants and preservative-free packaging",
			Rationale: "Targets the fastest-growing retail segment",
		},
	}

	s.streamUpdates(w, []models.StatusUpdate{
		{Status: models.KindResearching, Message: "Reviewing the analysis", Progress: 20},
		{Status: models.KindFormulating, Message: "Exploring formulation directions", Progress: 60},
		{Status: models.KindComplete, Message: "Suggestions ready", Progress: 100, Payload: mustJSON(payload)},
	})
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if req.PromptText == "" {
		writeError(w, http.StatusBadRequest, "prompt_text is required")
		return
	}
	s.logger.Info("synthesize", "input_ref", req.InputRef)

	payload := models.Formulation{
		InputRef: req.InputRef,
		Category: req.Category,
		Prompt:   req.PromptText,
		Body: "Phase A: aqua 72%, glycerin 5%\n" +
			"Phase B: cetearyl alcohol 4%, caprylic/capric triglyceride 8%\n" +
			"Phase C: actives per brief 3%, preservative 1%, fragrance 0.5%\n\n" +
			"Process: heat phases A and B to 75C, combine under shear, cool to 40C before adding phase C.",
	}

	s.streamUpdates(w, []models.StatusUpdate{
		{Status: models.KindFormulating, Message: "Drafting the formulation", Progress: 30},
		{Status: models.KindFinalizing, Message: "Balancing ingredient ratios", Progress: 70},
		{Status: models.KindComplete, Message: "Formulation ready", Progress: 100, Payload: mustJSON(payload)},
	})
}
