package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/stattest/pkg/models"
)

// ValueResponse is the JSON form of a key-value entry.
type ValueResponse struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// ValueRequest is the body of PUT /kv/{key}.
type ValueRequest struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// toValue decodes the raw JSON value according to Type.
func (req ValueRequest) toValue() (models.Value, error) {
	typ, err := models.ParseValueType(req.Type)
	if err != nil {
		return models.Value{}, fmt.Errorf("%w: %q", models.ErrUnsupportedValueType, req.Type)
	}
	if len(req.Value) == 0 {
		return models.Value{}, fmt.Errorf("%w: missing value", models.ErrUnsupportedValueType)
	}

	switch typ {
	case models.TypeString:
		var s string
		if err := json.Unmarshal(req.Value, &s); err != nil {
			return models.Value{}, fmt.Errorf("%w: expected a string", models.ErrUnsupportedValueType)
		}
		return models.StringValue(s), nil
	case models.TypeDatetime:
		var t time.Time
		if err := json.Unmarshal(req.Value, &t); err != nil {
			return models.Value{}, fmt.Errorf("%w: expected an RFC 3339 timestamp", models.ErrUnsupportedValueType)
		}
		return models.DatetimeValue(t), nil
	case models.TypeFloat:
		var f float64
		if err := json.Unmarshal(req.Value, &f); err != nil {
			return models.Value{}, fmt.Errorf("%w: expected a number", models.ErrUnsupportedValueType)
		}
		return models.FloatValue(f), nil
	default:
		var i int64
		if err := json.Unmarshal(req.Value, &i); err != nil {
			return models.Value{}, fmt.Errorf("%w: expected an integer", models.ErrUnsupportedValueType)
		}
		return models.IntValue(i), nil
	}
}

func valueResponse(key string, v models.Value) ValueResponse {
	return ValueResponse{Key: key, Type: string(v.Type()), Value: v.Interface()}
}

// listValues returns every key-value entry.
// Supports pagination via ?limit=N&offset=M query parameters.
func (s *Server) listValues(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListValues(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]ValueResponse, len(entries))
	for i, e := range entries {
		out[i] = valueResponse(e.Key, e.Value)
	}
	respondJSON(w, http.StatusOK, paginateSlice(out, parsePaginationParams(r)))
}

// getValue returns one entry.
// GET /api/v1/kv/{key}
func (s *Server) getValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	v, ok, err := s.store.GetValue(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "key not found")
		return
	}

	respondJSON(w, http.StatusOK, valueResponse(key, v))
}

// putValue creates or overwrites an entry.
// PUT /api/v1/kv/{key} {"type":"float","value":0.5}
func (s *Server) putValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	v, err := req.toValue()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.store.StoreValue(r.Context(), key, v); err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, valueResponse(key, v))
}

// deleteValue removes an entry. Deleting a missing key succeeds.
// DELETE /api/v1/kv/{key}
func (s *Server) deleteValue(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteValue(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
