package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/peopledesk/starled/internal/domain"
)

// ─── Stars API ──────────────────────────────────────────────────────────────
// GET  /stars             — monthly quota of the authenticated caller
// POST /stars             — give a star
// GET  /stars/received    — received summary of the authenticated caller
// GET  /stars/leaderboard — lifetime received totals for a set of ids

// quotaResponse is the GET /stars body. The reset date is a calendar date,
// not an instant.
type quotaResponse struct {
	Available int    `json:"available"`
	Used      int    `json:"used"`
	ResetDate string `json:"resetDate"`
}

// handleQuota returns the caller's monthly quota.
// GET /stars
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	status, err := s.quota.Check(r.Context(), callerID(r), time.Now())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		Available: status.Available,
		Used:      status.Used,
		ResetDate: status.ResetDate.Format(time.DateOnly),
	})
}

// giveStarRequest is the POST /stars body.
type giveStarRequest struct {
	RecipientID string `json:"recipientId"`
	Reason      string `json:"reason"`
	Message     string `json:"message"`
}

// handleGiveStar records a new grant for the caller.
// POST /stars
func (s *Server) handleGiveStar(w http.ResponseWriter, r *http.Request) {
	var req giveStarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grant, err := s.redemption.GiveStar(r.Context(),
		callerID(r), req.RecipientID, domain.ReasonCode(req.Reason), req.Message, time.Now())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

// handleReceived returns the caller's received summary.
// GET /stars/received
func (s *Server) handleReceived(w http.ResponseWriter, r *http.Request) {
	summary, err := s.aggregator.ReceivedSummary(r.Context(), callerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleLeaderboard returns received totals for the requested ids.
// GET /stars/leaderboard?ids=a,b,c
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "ids query parameter required")
		return
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	totals, err := s.aggregator.Leaderboard(r.Context(), ids)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// writeDomainError translates domain errors into HTTP responses so the
// presentation layer never needs storage-specific knowledge.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, domain.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, domain.ErrSelfRecognition):
		writeError(w, http.StatusUnprocessableEntity, "cannot give a star to yourself")
	case errors.Is(err, domain.ErrInvalidReason):
		writeError(w, http.StatusUnprocessableEntity, "unknown reason code")
	case errors.Is(err, domain.ErrEmptyMessage):
		writeError(w, http.StatusUnprocessableEntity, "message must not be empty")
	case errors.Is(err, domain.ErrQuotaExhausted):
		_, next := domain.MonthWindow(time.Now())
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "monthly star quota exhausted",
			"resetDate": next.Format(time.DateOnly),
		})
	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("stars request failed")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again")
	}
}
