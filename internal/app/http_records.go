package app

import (
	"errors"
	"io"
	"net/http"
)

// maxImportBytes bounds raw nmap output accepted by the import route.
const maxImportBytes = 10 << 20

type saveNoteRequest struct {
	Content string `json:"content"`
}

func (s *HTTPServer) handleCredentials(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		credentials, err := s.service.ListCredentials(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, credentials)

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input CredentialInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		credential, err := s.service.CreateCredential(r.Context(), input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message":    "Credential created successfully",
			"credential": credential,
		})

	case len(parts) == 1 && parts[0] == "save" && r.Method == http.MethodPost:
		var req saveNoteRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		credential, err := s.service.SaveNote(r.Context(), req.Content)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Credentials saved successfully",
			"credential": credential,
		})

	case len(parts) == 1 && r.Method == http.MethodGet:
		credential, err := s.service.GetCredential(r.Context(), parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, credential)

	case len(parts) == 1 && r.Method == http.MethodPut:
		var input CredentialInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		credential, err := s.service.UpdateCredential(r.Context(), parts[0], input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Credential updated successfully",
			"credential": credential,
		})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteCredential(r.Context(), parts[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Credential deleted successfully"})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleScans(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		scans, err := s.service.ListScans(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scans)

	case len(parts) == 0 && r.Method == http.MethodPost:
		var input ScanInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		scan, err := s.service.CreateScan(r.Context(), input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Nmap scan saved successfully",
			"scan":    scan,
		})

	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		scans, err := s.service.SearchScans(r.Context(), r.URL.Query().Get("target"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scans)

	case len(parts) == 1 && parts[0] == "import" && r.Method == http.MethodPost:
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Scan output is too large", nil)
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
			return
		}
		query := r.URL.Query()
		scan, err := s.service.ImportScan(r.Context(), raw, query.Get("target"), query.Get("command"), query.Get("scanType"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Nmap scan saved successfully",
			"scan":    scan,
		})

	case len(parts) == 1 && r.Method == http.MethodGet:
		scan, err := s.service.GetScan(r.Context(), parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scan)

	case len(parts) == 1 && r.Method == http.MethodPut:
		var input ScanInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		scan, err := s.service.UpdateScan(r.Context(), parts[0], input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Nmap scan updated successfully",
			"scan":    scan,
		})

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteScan(r.Context(), parts[0]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Nmap scan deleted successfully"})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}
