package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/repository"
	"github.com/postpulse/postpulse-backend/internal/synergy"
)

const (
	maxDays  = 365
	maxLimit = 500

	readyTimeout = 2 * time.Second
)

var errBadRequest = errors.New("bad request")

// PartnerService is the synergy surface the handlers call.
type PartnerService interface {
	AddPartner(ctx context.Context, token, name, partnerURN string) (repository.Partner, error)
	ListPartners(ctx context.Context, token string) ([]repository.Partner, error)
	RemovePartner(ctx context.Context, token string, id uuid.UUID) error
	Feed(ctx context.Context, token string, id uuid.UUID, days, limit int) (*synergy.Feed, error)
}

// ScoreHistory records and lists dashboard scores.
type ScoreHistory interface {
	AppendScore(ctx context.Context, rec repository.ScoreRecord) (repository.ScoreRecord, error)
	ListScores(ctx context.Context, member string, limit int) ([]repository.ScoreRecord, error)
}

// Streamer upgrades a request into a live feed of topic.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, topic string)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	runner   pipeline.Runner
	partners PartnerService
	history  ScoreHistory
	stream   Streamer
	checks   map[string]Pinger
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// Deps wires the handler. Checks are pinged by /readyz.
type Deps struct {
	Runner   pipeline.Runner
	Partners PartnerService
	History  ScoreHistory
	Stream   Streamer
	Checks   map[string]Pinger
	Logger   *zap.SugaredLogger
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Handler{
		runner:   d.Runner,
		partners: d.Partners,
		history:  d.History,
		stream:   d.Stream,
		checks:   d.Checks,
		logger:   d.Logger,
		now:      time.Now,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var failing []string
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warnw("Readiness check failed", "check", name, "error", err)
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		h.writeError(w, http.StatusServiceUnavailable, "not_ready", "unavailable: "+strings.Join(failing, ","))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// queryInt reads a positive integer parameter capped at max. Absent means 0.
func queryInt(r *http.Request, name string, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	if n > max {
		n = max
	}
	return n, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func (h *Handler) pipelineRequest(r *http.Request) (pipeline.Request, error) {
	token := bearerToken(r)
	if token == "" {
		return pipeline.Request{}, pipeline.ErrMissingToken
	}
	days, err := queryInt(r, "days", maxDays)
	if err != nil {
		return pipeline.Request{}, err
	}
	limit, err := queryInt(r, "limit", maxLimit)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		Token:   token,
		Days:    days,
		Limit:   limit,
		Refresh: queryBool(r, "refresh"),
	}, nil
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*pipeline.Result, bool) {
	req, err := h.pipelineRequest(r)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return res, true
}

func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, TimelineDTO{
		Member:      res.Member,
		Scope:       res.Scope,
		Count:       len(res.Posts),
		Posts:       res.Posts,
		Degraded:    res.Degraded,
		GeneratedAt: unixMilli(res.GeneratedAt),
	})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, AnalyticsDTO{
		PostCount:   res.Analytics.Totals.Posts,
		Analytics:   res.Analytics,
		Connections: res.Connections,
		Degraded:    res.Degraded,
		GeneratedAt: unixMilli(res.GeneratedAt),
	})
}

// GetScore computes the dashboard score and appends it to the caller's
// history. A failed append is logged and the score is still returned.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	res, ok := h.run(w, r)
	if !ok {
		return
	}

	dto := ScoreDTO{
		Scores:     res.Scores,
		Inputs:     res.ScoreInputs,
		Profile:    res.Profile,
		Degraded:   res.Degraded,
		ComputedAt: h.now().UnixMilli(),
	}
	if h.history != nil {
		rec, err := h.history.AppendScore(r.Context(), repository.ScoreRecord{
			Member:     pipeline.Fingerprint(bearerToken(r)),
			Scores:     res.Scores,
			ComputedAt: h.now(),
		})
		if err != nil {
			h.logger.Warnw("Failed to record score history", "error", err)
		} else {
			dto.ID = rec.ID.String()
			dto.ComputedAt = rec.ComputedAt.UnixMilli()
		}
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) GetScoreHistory(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.fail(w, pipeline.ErrMissingToken)
		return
	}
	limit, err := queryInt(r, "limit", maxLimit)
	if err != nil {
		h.fail(w, err)
		return
	}

	records, err := h.history.ListScores(r.Context(), pipeline.Fingerprint(token), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	dto := ScoreHistoryDTO{Entries: make([]ScoreHistoryEntryDTO, 0, len(records))}
	for _, rec := range records {
		dto.Entries = append(dto.Entries, ScoreHistoryEntryDTO{
			ID:         rec.ID.String(),
			Scores:     rec.Scores,
			ComputedAt: rec.ComputedAt.UnixMilli(),
		})
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	list, err := h.partners.ListPartners(r.Context(), bearerToken(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	dto := PartnersDTO{Partners: make([]PartnerDTO, 0, len(list))}
	for _, p := range list {
		dto.Partners = append(dto.Partners, toPartnerDTO(p))
	}
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) AddPartner(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.fail(w, pipeline.ErrMissingToken)
		return
	}

	var req AddPartnerRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	p, err := h.partners.AddPartner(r.Context(), token, req.Name, req.PartnerURN)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPartnerDTO(p))
}

func partnerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid partner id", errBadRequest)
	}
	return id, nil
}

func (h *Handler) RemovePartner(w http.ResponseWriter, r *http.Request) {
	id, err := partnerID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.partners.RemovePartner(r.Context(), bearerToken(r), id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPartnerFeed(w http.ResponseWriter, r *http.Request) {
	id, err := partnerID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	req, err := h.pipelineRequest(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	feed, err := h.partners.Feed(r.Context(), req.Token, id, req.Days, req.Limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, FeedDTO{
		Partner:            toPartnerDTO(feed.Partner),
		Posts:              feed.Posts,
		MutualInteractions: feed.MutualInteractions,
		MutualScore:        feed.MutualScore(),
		Degraded:           feed.Degraded,
	})
}

// HandleStream upgrades to a websocket bound to the caller's timeline topic.
// Browsers cannot set headers on upgrade, so access_token is accepted too.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		h.fail(w, pipeline.ErrMissingToken)
		return
	}
	h.stream.Serve(w, r, pipeline.Topic(pipeline.Fingerprint(token)))
}

// statusClientClosedRequest is nginx's non-standard code for a request the
// client abandoned before the response was written.
const statusClientClosedRequest = 499

// fail maps err onto a status and error code.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, pipeline.ErrMissingToken):
		status, code = http.StatusUnauthorized, "missing_token"
	case errors.Is(err, errBadRequest), errors.Is(err, synergy.ErrInvalidPartner):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, repository.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrDuplicate):
		status, code = http.StatusConflict, "duplicate"
	case errors.Is(err, synergy.ErrIdentityUnavailable):
		status, code = http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		status, code = statusClientClosedRequest, "client_closed_request"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	h.writeError(w, status, code, message)
	if status >= 500 {
		h.logger.Errorw("Request failed", "code", code, "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Debugw("API error", "code", code, "message", message, "status", status)
	writeErrorBody(w, status, code, message)
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}
