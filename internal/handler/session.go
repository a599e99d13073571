package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/cookiespooky/np-tma-backend/internal/handler/dto"
	"github.com/cookiespooky/np-tma-backend/internal/initdata"
	"github.com/cookiespooky/np-tma-backend/internal/service"
)

// Session event types, one logged per terminal outcome.
const (
	eventValidateOK   = "validate_ok"
	eventValidateFail = "validate_fail"
	eventLeadOK       = "lead_ok"
	eventLeadFail     = "lead_fail"
)

// SessionHandler handles HTTP requests for session validation and leads.
type SessionHandler struct {
	svc    *service.SessionService
	logger *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(svc *service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		svc:    svc,
		logger: logger,
	}
}

// Validate handles POST /validate.
func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.initData(w, r, eventValidateFail)
	if !ok {
		return
	}

	identity, uniqueUsers, err := h.svc.Validate(r.Context(), raw)
	if err != nil {
		h.logEvent(eventValidateFail, identity)
		h.writeServiceError(w, err)
		return
	}

	h.logEvent(eventValidateOK, identity)
	writeJSON(w, http.StatusOK, dto.ValidateResponse{
		OK:    true,
		User:  dto.ToUserResponse(identity),
		Stats: dto.StatsResponse{UniqueUsers: uniqueUsers},
	})
}

// Lead handles POST /lead.
func (h *SessionHandler) Lead(w http.ResponseWriter, r *http.Request) {
	raw, ok := h.initData(w, r, eventLeadFail)
	if !ok {
		return
	}

	identity, err := h.svc.SubmitLead(r.Context(), raw)
	if err != nil {
		h.logEvent(eventLeadFail, identity)
		h.writeServiceError(w, err)
		return
	}

	h.logEvent(eventLeadOK, identity)
	writeJSON(w, http.StatusOK, dto.LeadResponse{OK: true})
}

// initData extracts the initData string from the request body. A body
// that fails to parse is treated as empty rather than rejected, so both
// cases fall through to MISSING_INITDATA without touching the verifier
// or the store.
func (h *SessionHandler) initData(w http.ResponseWriter, r *http.Request, failEvent string) (string, bool) {
	var req dto.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = dto.SessionRequest{}
	}

	if req.InitData == "" {
		h.logEvent(failEvent, nil)
		writeError(w, http.StatusBadRequest, dto.CodeMissingInitData, "initData is required")
		return "", false
	}

	return req.InitData, true
}

// writeServiceError maps service errors onto the fixed error taxonomy.
// Infrastructure detail stays in the server log.
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	var rateErr *service.RateLimitError

	switch {
	case errors.Is(err, initdata.ErrExpiredInitData):
		writeError(w, http.StatusUnauthorized, dto.CodeExpiredInitData, "init data is expired")
	case errors.Is(err, initdata.ErrInvalidInitData):
		writeError(w, http.StatusUnauthorized, dto.CodeInvalidInitData, "init data is invalid")
	case errors.As(err, &rateErr):
		remaining := int64(math.Ceil(rateErr.Remaining.Seconds()))
		writeError(w, http.StatusTooManyRequests, dto.CodeRateLimited,
			fmt.Sprintf("too many requests, try again in %d seconds", remaining))
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, dto.CodeInternalError, "internal error")
	}
}

// logEvent emits the one structured record per terminal outcome. Only the
// event type and user id are logged; the raw payload never is.
func (h *SessionHandler) logEvent(eventType string, identity *initdata.Identity) {
	if identity != nil {
		h.logger.Info("session event", "event_type", eventType, "user_id", identity.ID)
		return
	}
	h.logger.Info("session event", "event_type", eventType, "user_id", nil)
}
