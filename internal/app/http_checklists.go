package app

import (
	"bytes"
	"encoding/json"
	"net/http"
)

type replaceChecklistRequest struct {
	Target string          `json:"target"`
	Items  json.RawMessage `json:"items"`
}

func (s *HTTPServer) handleChecklists(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		summaries, err := s.service.ListChecklists(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summaries)

	case len(parts) == 0 && r.Method == http.MethodPost:
		var req replaceChecklistRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		items, err := decodeItems(req.Items)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		checklist, err := s.service.ReplaceChecklist(r.Context(), req.Target, items)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Checklist saved successfully",
			"checklist": checklist,
		})

	case len(parts) == 1 && r.Method == http.MethodGet:
		checklist, err := s.service.GetChecklist(r.Context(), parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, checklist)

	case len(parts) == 1 && r.Method == http.MethodHead:
		exists, err := s.service.ChecklistExists(r.Context(), parts[0])
		if err != nil {
			status, _, _, _ := mapError(err)
			w.WriteHeader(status)
			return
		}
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if _, err := s.service.DeleteChecklist(r.Context(), parts[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Checklist deleted successfully"})

	case len(parts) == 2 && parts[1] == "item" && r.Method == http.MethodPut:
		var update ItemUpdate
		if err := decodeBody(r, &update); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		checklist, err := s.service.UpsertItem(r.Context(), parts[0], update)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Checklist item updated successfully",
			"checklist": checklist,
		})

	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		entries, err := s.service.ChecklistHistory(r.Context(), parts[0], parseLimit(r.URL.Query().Get("limit"), 50))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// decodeItems keeps "missing" (nil) distinct from "empty" ([]) so that an
// empty array clears the checklist.
func decodeItems(raw json.RawMessage) ([]ItemInput, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, validationError("Items must be an array")
	}
	items := []ItemInput{}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, validationError("Items must be an array of checklist items")
	}
	return items, nil
}
