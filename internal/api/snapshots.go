package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/stattest/internal/storage"
	"github.com/fidde/stattest/internal/storage/snapshots"
	"github.com/fidde/stattest/pkg/models"
)

// SnapshotHandler handles snapshot-related API requests.
type SnapshotHandler struct {
	store      *snapshots.Store
	serializer *snapshots.Serializer
	data       storage.Storage
}

// NewSnapshotHandler creates a snapshot handler over the live store data.
func NewSnapshotHandler(store *snapshots.Store, data storage.Storage) *SnapshotHandler {
	return &SnapshotHandler{
		store:      store,
		serializer: snapshots.NewSerializer(),
		data:       data,
	}
}

// ListSnapshots returns metadata for all saved snapshots.
// GET /api/v1/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list snapshots: "+err.Error())
		return
	}

	if list == nil {
		list = []*models.SnapshotMetadata{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": list,
		"total":     len(list),
	})
}

// GetSnapshot returns metadata for a specific snapshot.
// GET /api/v1/snapshots/{name}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.GetMetadata(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

// CreateSnapshot saves the current store contents as a snapshot.
// POST /api/v1/snapshots[?force=true]
func (h *SnapshotHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var opts models.SnapshotSaveOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := opts.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, _ := h.store.Exists(ctx, opts.Name)
	if exists && r.URL.Query().Get("force") != "true" {
		respondError(w, http.StatusConflict, "Snapshot already exists. Use ?force=true to overwrite.")
		return
	}

	snap, err := h.serializer.Create(ctx, opts, h.data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create snapshot: "+err.Error())
		return
	}

	if err := h.store.Save(ctx, snap); err != nil {
		respondError(w, statusFor(err), "Failed to save snapshot: "+err.Error())
		return
	}

	meta, _ := h.store.GetMetadata(ctx, opts.Name)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Snapshot created successfully",
		"snapshot": meta,
	})
}

// DeleteSnapshot removes a snapshot.
// DELETE /api/v1/snapshots/{name}
func (h *SnapshotHandler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadSnapshot writes a snapshot back into the live store. With
// ?replace=true existing samples are cleared first; key-value entries are
// always overwritten and benchmark results appended.
// POST /api/v1/snapshots/{name}/load
func (h *SnapshotHandler) LoadSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.store.Load(ctx, chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	if r.URL.Query().Get("replace") == "true" {
		if err := h.data.ClearAllSamples(ctx); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to clear samples: "+err.Error())
			return
		}
	}

	result, err := h.serializer.Restore(ctx, snap, h.data)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load snapshot: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Snapshot loaded successfully",
		"loaded":  result,
	})
}
