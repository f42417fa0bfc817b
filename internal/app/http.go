package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"folio/api/internal/convert"
	"folio/api/internal/logging"
	"folio/api/internal/search"
)

const maxBodyBytes = 8 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok"}
		status := http.StatusOK
		if err := s.service.Ping(ctx); err != nil {
			checks["database"] = "error"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"ok":     status == http.StatusOK,
			"status": http.StatusText(status),
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/styles" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]any{
			"styles":  styleNames(),
			"default": s.service.defaultStyle.String(),
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "drafts":
		s.handleDrafts(w, r, parts[2:])
	case "convert":
		s.handleConvert(w, r, parts[2:])
	case "references":
		s.handleReferences(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleDrafts(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var input CreateDraftInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		view, err := s.service.CreateDraft(ctx, input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
		return
	}

	name := parts[0]
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		view, err := s.service.GetDraft(ctx, name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	switch {
	case parts[1] == "citations" && len(parts) == 2 && r.Method == http.MethodPost:
		var input InsertCitationInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		view, err := s.service.InsertCitation(ctx, name, input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case parts[1] == "style" && len(parts) == 2 && r.Method == http.MethodPut:
		var input SetStyleInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		view, err := s.service.SetStyle(ctx, name, input)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case parts[1] == "history" && len(parts) == 2 && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		commits, err := s.service.History(name, limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commits": commits})

	case parts[1] == "compare" && len(parts) == 2 && r.Method == http.MethodGet:
		query := r.URL.Query()
		result, err := s.service.Compare(name, query.Get("from"), query.Get("to"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case parts[1] == "tags" && len(parts) == 2 && r.Method == http.MethodPost:
		var input struct {
			Hash string `json:"hash"`
			Tag  string `json:"tag"`
		}
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		if err := s.service.Tag(name, input.Hash, input.Tag); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"tag": input.Tag, "hash": input.Hash})

	case parts[1] == "snapshots" && len(parts) == 2 && r.Method == http.MethodGet:
		snaps, err := s.service.Snapshots(ctx, name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})

	case parts[1] == "snapshots" && len(parts) == 3 && r.Method == http.MethodGet:
		text, err := s.service.Snapshot(ctx, name, parts[2])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))

	case parts[1] == "export" && len(parts) == 2 && r.Method == http.MethodPost:
		var input struct {
			Format string `json:"format"`
		}
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		result, err := s.service.Export(ctx, name, input.Format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleConvert(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 1 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}
	var input struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	switch parts[0] {
	case "interchange":
		writeJSON(w, http.StatusOK, convert.ToInterchange(input.Text))
	case "editing":
		writeJSON(w, http.StatusOK, convert.ToEditing(input.Text))
	case "keys":
		writeJSON(w, http.StatusOK, map[string]any{"keys": convert.ExtractKeys(input.Text)})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleReferences(w http.ResponseWriter, r *http.Request, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var record map[string]any
		if err := decodeBody(r, &record); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		rec, err := s.service.PutReference(ctx, record)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query()
		q := search.Query{
			Text: strings.TrimSpace(query.Get("q")),
			Year: strings.TrimSpace(query.Get("year")),
		}
		q.Limit, _ = strconv.Atoi(query.Get("limit"))
		q.Offset, _ = strconv.Atoi(query.Get("offset"))
		writeJSON(w, http.StatusOK, s.service.SearchReferences(ctx, q))

	case len(parts) == 1 && parts[0] == "prefetch" && r.Method == http.MethodPost:
		var input struct {
			Keys []string `json:"keys"`
		}
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		report, err := s.service.PrefetchReferences(ctx, input.Keys)
		response := map[string]any{"report": report}
		var merr *multierror.Error
		if errors.As(err, &merr) {
			messages := make([]string, len(merr.Errors))
			for i, e := range merr.Errors {
				messages[i] = e.Error()
			}
			response["errors"] = messages
		} else if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case len(parts) == 1 && r.Method == http.MethodGet:
		rec, err := s.service.GetReference(ctx, parts[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

// fail writes the mapped error and logs server errors with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "code", code, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		r = r.WithContext(logging.WithRequestID(r.Context(), requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
