// Routes served by Handler. All routes expect the x-user-id header (and
// optionally x-user-sites, x-user-roles) forwarded by the gateway.
//
//	POST /participants/bulk-engage         → prospect many participants
//	POST /participants/{id}/status         → transition one participant
//	GET  /participants/{id}/statuses       → full status history
//	POST /statuses/{id}/hide               → hide a status for the caller

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler exposes the Coordinator over HTTP.
type Handler struct {
	coord *Coordinator
}

// NewHandler returns a configured Handler.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

// RegisterRoutes mounts all status routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/participants/", h.handleParticipantAction)
	mux.HandleFunc("/statuses/", h.handleStatusAction)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleParticipantAction handles /participants/bulk-engage and
// /participants/{id}/status|statuses
func (h *Handler) handleParticipantAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[1] == "bulk-engage":
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.bulkEngage(w, r)
	case len(parts) == 3 && parts[2] == "status":
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.transition(w, r, parts[1])
	case len(parts) == 3 && parts[2] == "statuses":
		if r.Method != http.MethodGet {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r, parts[1])
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

// handleStatusAction handles POST /statuses/{id}/hide
func (h *Handler) handleStatusAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "hide" {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	statusID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		jsonError(w, "invalid status id", http.StatusBadRequest)
		return
	}
	h.hideStatus(w, r, statusID)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, participantID string) {
	user, ok := actingUserFromRequest(w, r)
	if !ok {
		return
	}

	var body struct {
		EmployerID      string          `json:"employerId"`
		Status          string          `json:"status"`
		Data            json.RawMessage `json:"data"`
		CurrentStatusID int64           `json:"currentStatusId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		jsonError(w, "body must contain status", http.StatusBadRequest)
		return
	}

	status, err := ParseStatus(body.Status)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var data Payload
	if !IsInternalOnly(status) {
		if data, err = DecodePayload(status, body.Data); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	employerID := body.EmployerID
	if employerID == "" {
		employerID = user.ID
	}

	res, err := h.coord.Transition(r.Context(), TransitionRequest{
		EmployerID:      employerID,
		ParticipantID:   participantID,
		Status:          status,
		Data:            data,
		User:            user,
		CurrentStatusID: body.CurrentStatusID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	switch res.Failure {
	case "":
		jsonOK(w, res.Response())
	case KindInvalidStatus:
		jsonWrite(w, http.StatusBadRequest, res.Response())
	default:
		jsonWrite(w, http.StatusConflict, res.Response())
	}
}

func (h *Handler) bulkEngage(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUserFromRequest(w, r)
	if !ok {
		return
	}

	var body struct {
		ParticipantIDs []string `json:"participantIds"`
		Site           int64    `json:"site"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ParticipantIDs) == 0 {
		jsonError(w, "body must contain participantIds", http.StatusBadRequest)
		return
	}

	results, err := h.coord.BulkEngage(r.Context(), EngageRequest{
		ParticipantIDs: body.ParticipantIDs,
		User:           user,
		Site:           body.Site,
	})
	if err != nil {
		// Per-participant failures are already in results.
		slog.Warn("bulk engage completed with errors", "err", err)
	}
	jsonOK(w, results)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, participantID string) {
	if _, ok := actingUserFromRequest(w, r); !ok {
		return
	}
	records, err := h.coord.History(r.Context(), participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []StatusRecord{}
	}
	jsonOK(w, records)
}

func (h *Handler) hideStatus(w http.ResponseWriter, r *http.Request, statusID int64) {
	user, ok := actingUserFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.coord.HideStatusForUser(r.Context(), user.ID, statusID); err != nil {
		writeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"id": statusID, "hidden": true})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// actingUserFromRequest resolves the caller from gateway headers, writing a
// 401 when x-user-id is missing.
func actingUserFromRequest(w http.ResponseWriter, r *http.Request) (ActingUser, bool) {
	user, err := ParseActingUser(r.Header.Get("x-user-id"), r.Header.Get("x-user-sites"), r.Header.Get("x-user-roles"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnauthorized)
		return ActingUser{}, false
	}
	return user, true
}

// ParseActingUser builds an ActingUser from the comma-separated values the
// gateway forwards. Unknown roles are ignored.
func ParseActingUser(id, sites, roles string) (ActingUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ActingUser{}, errors.New("missing x-user-id")
	}
	user := ActingUser{ID: id}
	for _, s := range strings.Split(sites, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		site, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ActingUser{}, fmt.Errorf("invalid site %q", s)
		}
		user.Sites = append(user.Sites, site)
	}
	for _, role := range strings.Split(roles, ",") {
		switch strings.TrimSpace(role) {
		case "employer":
			user.IsEmployer = true
		case "health_authority":
			user.IsHealthAuthority = true
		case "ministry_of_health":
			user.IsMinistry = true
		}
	}
	return user, nil
}

func writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		jsonError(w, ve.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrStatusNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("status request failed", "err", err)
		jsonError(w, "database error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonWrite(w, http.StatusOK, v)
}

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, map[string]string{"error": msg})
}
