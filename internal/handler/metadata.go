package handler

import (
	"encoding/json"
	"net/http"

	"planbook/internal/model"
	"planbook/internal/store"
)

type MetadataHandler struct {
	metadata *store.MetadataStore
}

func NewMetadataHandler(metadata *store.MetadataStore) *MetadataHandler {
	return &MetadataHandler{metadata: metadata}
}

// flagsRequest carries partial updates: a nil field leaves that flag alone.
type flagsRequest struct {
	Seen     *bool `json:"seen"`
	Notified *bool `json:"notified"`
}

var thingTypes = map[string]model.ThingType{
	"event":         model.ThingEvent,
	"lesson_change": model.ThingLessonChange,
	"homework":      model.ThingHomework,
}

// SetFlags lazily creates the metadata record and updates the given flags.
// POST /api/profiles/{p}/metadata/{thingType}/{id}
func (h *MetadataHandler) SetFlags(w http.ResponseWriter, r *http.Request) {
	profileID, ok := pathInt64(r, "p")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	thingType, ok := thingTypes[r.PathValue("thingType")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown thing type")
		return
	}

	thingID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid thing id")
		return
	}

	var req flagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Seen == nil && req.Notified == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Seen != nil {
		if err := h.metadata.SetSeen(profileID, thingType, thingID, *req.Seen); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if req.Notified != nil {
		if err := h.metadata.SetNotified(profileID, thingType, thingID, *req.Notified); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	record, err := h.metadata.Get(profileID, thingType, thingID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
