package control

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// interaction is the decoded body of a signed POST to /interactions. It
// covers both the named commands (stats/set/apply/rollback) and the
// button/modal equivalents the nightly report's components post back,
// distinguished by whether CustomID is set.
type interaction struct {
	Command      string                 `json:"command,omitempty"`
	Key          string                 `json:"key,omitempty"`
	Value        interface{}            `json:"value,omitempty"`
	Delta        map[string]interface{} `json:"delta,omitempty"`
	N            int                    `json:"n,omitempty"`
	HistoryLimit int                    `json:"history_limit,omitempty"`
	CustomID     string                 `json:"custom_id,omitempty"`
	Author       string                 `json:"author"`
}

// interactionResponse is returned for every command. Failures always
// carry both a one-line human-readable Message and a machine Code, per
// spec.md §7's interactive-command error contract.
type interactionResponse struct {
	Ok        bool                      `json:"ok"`
	RequestID string                    `json:"request_id"`
	Message   string                    `json:"message,omitempty"`
	Code      string                    `json:"code,omitempty"`
	Revision  int                       `json:"revision,omitempty"`
	Snapshot  map[string]interface{}    `json:"snapshot,omitempty"`
	History   []domain.AuditRecord      `json:"history,omitempty"`
	Report    *events.NightlyReportData `json:"report,omitempty"`
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if s.verifier != nil {
			r.Use(s.verifier.Middleware)
		}
		r.Post("/interactions", s.handleInteraction)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	var in interaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
			Message: "malformed request body",
			Code:    "BAD_REQUEST",
		})
		return
	}

	if in.CustomID != "" {
		s.handleComponent(w, requestID, in)
		return
	}

	switch in.Command {
	case "stats":
		s.handleStats(w, requestID, in)
	case "set":
		s.handleSet(w, requestID, in)
	case "apply":
		s.handleApply(w, requestID, in)
	case "rollback":
		s.handleRollback(w, requestID, in)
	default:
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
			Message: "unrecognized command",
			Code:    "UNKNOWN_COMMAND",
		})
	}
}

func (s *Server) handleStats(w http.ResponseWriter, requestID string, in interaction) {
	snap := s.params.Get()
	limit := in.HistoryLimit
	if limit <= 0 {
		limit = 20
	}
	hist, err := s.params.History(limit)
	if err != nil {
		s.respond(w, requestID, http.StatusInternalServerError, interactionResponse{
			Message: "failed to read audit history",
			Code:    "INTERNAL_ERROR",
		})
		return
	}
	s.respond(w, requestID, http.StatusOK, interactionResponse{
		Ok:       true,
		Revision: snap.Revision,
		Snapshot: snap.FullValues,
		History:  hist,
	})
}

func (s *Server) handleSet(w http.ResponseWriter, requestID string, in interaction) {
	if in.Key == "" {
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{Message: "missing key", Code: "BAD_REQUEST"})
		return
	}
	s.applyDelta(w, requestID, map[string]interface{}{in.Key: in.Value}, in.Author, "control_surface")
}

func (s *Server) handleApply(w http.ResponseWriter, requestID string, in interaction) {
	if len(in.Delta) == 0 {
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{Message: "empty delta", Code: "BAD_REQUEST"})
		return
	}
	s.applyDelta(w, requestID, in.Delta, in.Author, "control_surface")
}

func (s *Server) applyDelta(w http.ResponseWriter, requestID string, delta map[string]interface{}, author, sourceTag string) {
	res, err := s.params.Apply(delta, author, sourceTag)
	if err != nil {
		s.writeApplyError(w, requestID, err)
		return
	}
	s.respond(w, requestID, http.StatusOK, interactionResponse{
		Ok:       true,
		Message:  "applied",
		Revision: res.Revision,
		Snapshot: res.Snapshot.FullValues,
	})
}

func (s *Server) handleRollback(w http.ResponseWriter, requestID string, in interaction) {
	n := in.N
	if n < 1 {
		n = 1
	}
	res, err := s.params.Rollback(n)
	if err != nil {
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
			Message: err.Error(),
			Code:    "ROLLBACK_FAILED",
		})
		return
	}
	s.respond(w, requestID, http.StatusOK, interactionResponse{
		Ok:       true,
		Message:  "rolled back",
		Revision: res.Revision,
		Snapshot: res.Snapshot.FullValues,
	})
}

func (s *Server) writeApplyError(w http.ResponseWriter, requestID string, err error) {
	if rl, ok := err.(*RateLimitedError); ok {
		s.respond(w, requestID, http.StatusTooManyRequests, interactionResponse{
			Message: rl.Error(),
			Code:    "RATE_LIMITED",
		})
		return
	}
	s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
		Message: err.Error(),
		Code:    "VALIDATION_FAILED",
	})
}

// handleComponent routes a button click from the nightly report
// (custom_id prefixed "nightly_report:") to the matching action. Every
// click still carries an author and flows through paramstore the same
// as a typed command, per spec.md §4.L.
func (s *Server) handleComponent(w http.ResponseWriter, requestID string, in interaction) {
	action, ok := strings.CutPrefix(in.CustomID, "nightly_report:")
	if !ok {
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
			Message: "unrecognized component",
			Code:    "UNKNOWN_COMPONENT",
		})
		return
	}

	switch action {
	case "view_detail":
		s.mu.Lock()
		report := s.lastReport
		s.mu.Unlock()
		if report == nil {
			s.respond(w, requestID, http.StatusNotFound, interactionResponse{
				Message: "no report available yet",
				Code:    "NOT_FOUND",
			})
			return
		}
		s.respond(w, requestID, http.StatusOK, interactionResponse{Ok: true, Report: report})

	case "approve":
		s.applyDelta(w, requestID, map[string]interface{}{}, in.Author, "nightly_report_approval")

	case "reject":
		s.respond(w, requestID, http.StatusOK, interactionResponse{Ok: true, Message: "report recommendations rejected, no config changed"})

	case "custom":
		if len(in.Delta) == 0 {
			s.respond(w, requestID, http.StatusBadRequest, interactionResponse{Message: "custom action requires a delta", Code: "BAD_REQUEST"})
			return
		}
		s.applyDelta(w, requestID, in.Delta, in.Author, "nightly_report_custom")

	default:
		s.respond(w, requestID, http.StatusBadRequest, interactionResponse{
			Message: "unrecognized nightly_report action",
			Code:    "UNKNOWN_COMPONENT",
		})
	}
}

// respond stamps requestID onto resp and writes it, so every response --
// success or failure -- carries the same idempotency/audit identifier a
// caller can correlate against the audit log.
func (s *Server) respond(w http.ResponseWriter, requestID string, status int, resp interactionResponse) {
	resp.RequestID = requestID
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
