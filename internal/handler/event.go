package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"planbook/internal/filter"
	"planbook/internal/model"
	"planbook/internal/store"
)

type EventHandler struct {
	events   *store.EventStore
	validate *validator.Validate
}

func NewEventHandler(events *store.EventStore) *EventHandler {
	return &EventHandler{
		events:   events,
		validate: validator.New(),
	}
}

type eventRequest struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind" validate:"omitempty,oneof=event homework lesson_change"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string `json:"start_time" validate:"omitempty"`
	Topic         string `json:"topic" validate:"max=1000"`
	Color         *int64 `json:"color"`
	AddedManually bool   `json:"added_manually"`
	TeamID        *int64 `json:"team_id"`
	SubjectID     *int64 `json:"subject_id"`
	TeacherID     *int64 `json:"teacher_id"`
	EventTypeID   *int64 `json:"event_type_id"`
}

func (h *EventHandler) toEvent(profileID int64, req *eventRequest) (*model.Event, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, err
	}

	kind := model.KindEvent
	if req.Kind != "" {
		kind, _ = model.ParseEventKind(req.Kind)
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}

	var startTime *model.ClockTime
	if req.StartTime != "" {
		t, err := model.ParseClockTime(req.StartTime)
		if err != nil {
			return nil, err
		}
		startTime = &t
	}

	return &model.Event{
		ProfileID:     profileID,
		ID:            req.ID,
		Kind:          kind,
		Date:          date,
		StartTime:     startTime,
		Topic:         req.Topic,
		Color:         req.Color,
		AddedManually: req.AddedManually,
		TeamID:        req.TeamID,
		SubjectID:     req.SubjectID,
		TeacherID:     req.TeacherID,
		EventTypeID:   req.EventTypeID,
	}, nil
}

// Create upserts a single event. POST /api/profiles/{p}/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	event, err := h.toEvent(profileID, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.events.Add(event); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// CreateBatch upserts many events in one transaction.
// POST /api/profiles/{p}/events/batch
func (h *EventHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var reqs []eventRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	events := make([]*model.Event, 0, len(reqs))
	for i := range reqs {
		event, err := h.toEvent(profileID, &reqs[i])
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		events = append(events, event)
	}

	if err := h.events.AddAll(events); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, events)
}

// List answers a snapshot query. GET /api/profiles/{p}/events with optional
// date, time, kind and not_notified query parameters.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	q := r.URL.Query()
	f, err := filter.FromParams(filter.Params{
		Date:        q.Get("date"),
		Time:        q.Get("time"),
		Kind:        q.Get("kind"),
		NotNotified: q.Get("not_notified") == "1",
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.GetAllWhereNow(profileID, f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if events == nil {
		events = []model.EventFull{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Get returns one event. GET /api/profiles/{p}/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.events.GetByIDNow(profileID, eventID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Delete removes an event together with its metadata record. The kind can
// be passed as a query parameter; otherwise it is read from the stored row
// (blacklisted or not), falling back to the plain-event kind when the row
// is already gone. DELETE /api/profiles/{p}/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	kind := model.KindEvent
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, valid := model.ParseEventKind(k)
		if !valid {
			writeError(w, http.StatusBadRequest, "unknown event kind")
			return
		}
		kind = parsed
	} else {
		stored, found, err := h.events.KindByID(profileID, eventID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if found {
			kind = stored
		}
	}

	if err := h.events.RemoveWithMetadata(profileID, kind, eventID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByTeam removes an event by its team-scoped key. This path never
// cascades into metadata. DELETE /api/teams/{teamId}/events/{id}
func (h *EventHandler) DeleteByTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathInt64(r, "teamId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if err := h.events.RemoveByTeam(teamID, eventID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blacklistRequest struct {
	Blacklisted bool `json:"blacklisted"`
}

// Blacklist toggles an event's visibility.
// POST /api/profiles/{p}/events/{id}/blacklist
func (h *EventHandler) Blacklist(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	eventID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.events.SetBlacklisted(profileID, eventID, req.Blacklisted); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type seenRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Seen bool   `json:"seen"`
}

// SetSeenByDate bulk-marks everything on one date as seen (or unseen).
// POST /api/profiles/{p}/seen
func (h *EventHandler) SetSeenByDate(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var req seenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := model.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.events.SetSeenByDate(profileID, date, req.Seen); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type purgeRequest struct {
	Mode  string `json:"mode" validate:"required,oneof=clear not_manual future"`
	Today string `json:"today" validate:"omitempty,datetime=2006-01-02"`
}

// Purge runs one of the bulk-maintenance deletions on behalf of the sync
// layer. POST /api/profiles/{p}/purge
func (h *EventHandler) Purge(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var req purgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch req.Mode {
	case "clear":
		err = h.events.Clear(profileID)
	case "not_manual":
		err = h.events.RemoveNotManual(profileID)
	case "future":
		today := model.Today()
		if req.Today != "" {
			today, err = model.ParseDate(req.Today)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		err = h.events.RemoveFuture(profileID, today)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
