package channel

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tienditabot/internal/domain"
)

// SandboxRequest is the body of POST /api/sandbox.
type SandboxRequest struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
	Kind           string `json:"kind,omitempty"` // text (default) | button
	Name           string `json:"name,omitempty"`
}

type SandboxIntent struct {
	ID string `json:"id"`
}

type SandboxAction struct {
	Type     string `json:"type"`
	Template string `json:"template,omitempty"`
	Body     string `json:"body,omitempty"`
}

type SandboxResponse struct {
	ConversationID string        `json:"conversationId"`
	Reply          string        `json:"reply"`
	Intent         SandboxIntent `json:"intent"`
	NextState      string        `json:"nextState"`
	NeedsHuman     bool          `json:"needsHuman"`
	Action         SandboxAction `json:"action"`
}

// Sandbox runs the classifier on arbitrary text without touching WhatsApp or the store.
type Sandbox struct {
	classifier Classifier
	logger     *slog.Logger
}

func NewSandbox(classifier Classifier, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{classifier: classifier, logger: logger}
}

func (s *Sandbox) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(rw, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	var req SandboxRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(rw, http.StatusBadRequest, "text is required")
		return
	}

	kind := domain.KindText
	switch strings.ToLower(req.Kind) {
	case "", "text":
	case "button", "interactive", "interactive_button":
		kind = domain.KindInteractiveButton
	case "template_button":
		kind = domain.KindTemplateButton
	default:
		writeJSONError(rw, http.StatusBadRequest, "kind must be text or button")
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = "sandbox"
	}

	dec := s.classifier.Classify(domain.InboundEvent{
		From:       req.ConversationID,
		Kind:       kind,
		Text:       req.Text,
		SenderName: req.Name,
		Timestamp:  time.Now(),
	})
	s.logger.Debug("sandbox classified", "conversation", req.ConversationID, "intent", dec.Intent)

	writeJSON(rw, http.StatusOK, SandboxResponse{
		ConversationID: req.ConversationID,
		Reply:          dec.Reply,
		Intent:         SandboxIntent{ID: dec.Intent},
		NextState:      dec.NextState,
		NeedsHuman:     dec.NeedsHuman,
		Action: SandboxAction{
			Type:     string(dec.Action.Type),
			Template: dec.Action.Template,
			Body:     dec.Action.Body,
		},
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}

func writeJSONError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
