package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/api"
	"github.com/dukerupert/clinicdesk/internal/model"
	"github.com/dukerupert/clinicdesk/internal/queue"
	"github.com/dukerupert/clinicdesk/internal/validate"
)

const refreshAfterCreateTimeout = 5 * time.Second

// QueueSource is the polled queue the visit routes read and refresh.
type QueueSource interface {
	Refresh(ctx context.Context) error
	Fetch(ctx context.Context) error
	Snapshot() (model.QueueSnapshot, bool)
	Refreshing() bool
}

type VisitHandler struct {
	client *api.Client
	poller QueueSource
	logger zerolog.Logger
}

func NewVisitHandler(client *api.Client, poller QueueSource, logger zerolog.Logger) *VisitHandler {
	return &VisitHandler{client: client, poller: poller, logger: logger}
}

type queueResponse struct {
	Snapshot   *model.QueueSnapshot `json:"snapshot"`
	Refreshing bool                 `json:"refreshing"`
}

func (h *VisitHandler) queueState() queueResponse {
	resp := queueResponse{Refreshing: h.poller.Refreshing()}
	if snap, ok := h.poller.Snapshot(); ok {
		resp.Snapshot = &snap
	}
	return resp
}

// Queue returns the last polled snapshot; snapshot is null until the first
// poll lands.
func (h *VisitHandler) Queue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queueState())
}

// RefreshQueue polls now, or joins the poll already in flight.
func (h *VisitHandler) RefreshQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.Refresh(r.Context()); err != nil {
		if errors.Is(err, queue.ErrStopped) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue updates are stopped"})
			return
		}
		writeError(w, err, "Failed to refresh the queue.")
		return
	}
	writeJSON(w, http.StatusOK, h.queueState())
}

// Create registers a patient visit and then fetches the queue so the new
// visit shows without waiting for the next poll. A poll already in flight
// was issued before the visit existed, so it is not joined.
func (h *VisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form validate.Patient
	if !decodeForm(w, r, &form) {
		return
	}
	visit, err := h.client.CreateVisit(r.Context(), model.NewVisit{
		PatientName: strings.TrimSpace(form.PatientName),
		Age:         *form.Age,
		Phone:       form.Phone,
	})
	if err != nil {
		writeError(w, err, "Failed to register patient. Please try again.")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshAfterCreateTimeout)
	defer cancel()
	if err := h.poller.Fetch(ctx); err != nil && !errors.Is(err, queue.ErrStopped) {
		h.logger.Warn().Err(err).Msg("queue refresh after registration")
	}
	writeJSON(w, http.StatusCreated, visit)
}

func (h *VisitHandler) Today(w http.ResponseWriter, r *http.Request) {
	visits, err := h.client.TodayVisits(r.Context())
	if err != nil {
		writeError(w, err, "Failed to load today's visits.")
		return
	}
	if visits == nil {
		visits = []model.Visit{}
	}
	writeJSON(w, http.StatusOK, visits)
}

func (h *VisitHandler) Show(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "visit id is required"})
		return
	}
	visit, err := h.client.VisitDetails(r.Context(), id)
	if err != nil {
		writeError(w, err, "Failed to load visit.")
		return
	}
	writeJSON(w, http.StatusOK, visit)
}
