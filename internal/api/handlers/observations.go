// Package handlers contains the HTTP handlers of the weather read API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"weatheringest/internal/core"
	"weatheringest/internal/types"
)

// ObservationLister reads persisted observations. Satisfied by
// db.ObservationRepository.
type ObservationLister interface {
	List(ctx context.Context, f types.ObservationFilter) ([]types.WeatherRecord, error)
}

// ObservationHandler serves the weather table to downstream consumers.
type ObservationHandler struct {
	lister    ObservationLister
	validator *core.Validator
	logger    *slog.Logger
	maxLimit  int
}

// NewObservationHandler returns a handler whose responses never exceed
// maxLimit rows.
func NewObservationHandler(lister ObservationLister, val *core.Validator, maxLimit int, logger *slog.Logger) *ObservationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator()
	}
	return &ObservationHandler{
		lister:    lister,
		validator: val,
		logger:    logger,
		maxLimit:  maxLimit,
	}
}

// RegisterRoutes mounts the observation endpoints.
func (h *ObservationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
}

// observationQuery holds the raw query parameters. Limit stays a string so
// a non-numeric value is reported against the parameter, not as a decode
// failure.
type observationQuery struct {
	From    string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To      string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Anomaly string `query:"anomaly" validate:"omitempty,max=200"`
	Limit   string `query:"limit" validate:"omitempty,number"`
}

// HandleList handles GET /v1/observations.
//
// from and to are inclusive calendar dates. anomaly matches the stored text
// exactly (for example "Normal" or "High Temperature, Heavy Rain"). limit
// defaults to, and is clamped at, the configured maximum.
func (h *ObservationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := observationQuery{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Anomaly: q.Get("anomaly"),
		Limit:   q.Get("limit"),
	}
	if err := h.validator.ValidateStruct(raw); err != nil {
		core.Error(w, r, err)
		return
	}

	filter, err := h.buildFilter(raw)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	records, err := h.lister.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list observations",
			"error", err,
			"request_id", types.GetRequestID(r.Context()),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: records,
		Meta: &core.ListMeta{Count: len(records), Limit: filter.Limit},
	})
}

func (h *ObservationHandler) buildFilter(raw observationQuery) (types.ObservationFilter, error) {
	filter := types.ObservationFilter{
		Anomaly: raw.Anomaly,
		Limit:   h.maxLimit,
	}

	if raw.From != "" {
		from, _ := time.Parse(types.DateLayout, raw.From)
		filter.From = &from
	}
	if raw.To != "" {
		to, _ := time.Parse(types.DateLayout, raw.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return filter, invalidParameter("from", "from must not be after to")
	}

	if raw.Limit != "" {
		limit, err := strconv.Atoi(raw.Limit)
		if err != nil || limit < 1 {
			return filter, invalidParameter("limit", "limit must be a positive integer")
		}
		if limit < h.maxLimit {
			filter.Limit = limit
		}
	}

	return filter, nil
}

func invalidParameter(name, message string) error {
	return types.NewAppError(types.ErrCodeValidationInvalidParameter, message, nil).
		WithDetails(map[string]any{"parameter": name})
}
