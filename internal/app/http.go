package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"formdesk/api/internal/auth"
	"formdesk/api/internal/logging"
	"formdesk/api/internal/rbac"
	"formdesk/api/internal/store"
	"formdesk/api/internal/util"
)

const maxBodyBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        logging.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: service.log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// formVersionView is the full snapshot of one version.
type formVersionView struct {
	FormID    string          `json:"formId"`
	Version   int             `json:"version"`
	Status    store.Status    `json:"status"`
	Title     string          `json:"title"`
	RawJSON   json.RawMessage `json:"rawJson"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Thumbnail string          `json:"thumbnail"`
}

type formSummaryView struct {
	FormID    string       `json:"formId"`
	Version   int          `json:"version"`
	Status    store.Status `json:"status"`
	Title     string       `json:"title"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Thumbnail string       `json:"thumbnail"`
}

func thumbnailPath(row store.FormVersion) string {
	if row.Thumbnail == "" {
		return ""
	}
	return fmt.Sprintf("/forms/%s/%d/thumbnail", row.FormID, row.Version)
}

func toView(row store.FormVersion) formVersionView {
	return formVersionView{
		FormID:    row.FormID,
		Version:   row.Version,
		Status:    row.Status,
		Title:     row.Title,
		RawJSON:   row.RawJSON,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Thumbnail: thumbnailPath(row),
	}
}

func refView(row store.FormVersion) map[string]any {
	return map[string]any{"formId": row.FormID, "version": row.Version, "status": row.Status}
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{}
		for name, err := range s.service.Ready(ctx) {
			if err != nil {
				status = "not_ready"
				statusCode = http.StatusServiceUnavailable
				checks[name] = map[string]any{"status": "error", "error": err.Error()}
				continue
			}
			checks[name] = map[string]any{"status": "ok"}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "forms" || len(parts) > 4 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodPost:
			s.handleCreate(w, r, session)
		case http.MethodGet:
			s.handleList(w, r, session)
		default:
			methodNotAllowed(w)
		}
		return
	case 2:
		if parts[1] == "search" && r.Method == http.MethodGet {
			s.handleSearch(w, r, session)
			return
		}
		switch r.Method {
		case http.MethodPut:
			s.handleEdit(w, r, session, parts[1])
		case http.MethodGet:
			if !s.authorize(w, r, session, rbac.ActionRead) {
				return
			}
			row, err := s.service.GetLatestForm(r.Context(), session, parts[1])
			if err != nil {
				s.writeServiceError(w, r, "get_latest", parts[1], err)
				return
			}
			writeJSON(w, http.StatusOK, toView(row))
		default:
			methodNotAllowed(w)
		}
		return
	}

	formID := parts[1]
	version, err := strconv.Atoi(parts[2])
	if err != nil || version < 1 {
		writeError(w, http.StatusNotFound, CodeNotFound, "Form not found", nil)
		return
	}

	if len(parts) == 3 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !s.authorize(w, r, session, rbac.ActionRead) {
			return
		}
		row, err := s.service.GetForm(r.Context(), session, formID, version)
		if err != nil {
			s.writeServiceError(w, r, "get_version", formID, err)
			return
		}
		writeJSON(w, http.StatusOK, toView(row))
		return
	}

	switch {
	case parts[3] == "thumbnail" && r.Method == http.MethodGet:
		if !s.authorize(w, r, session, rbac.ActionRead) {
			return
		}
		obj, err := s.service.Thumbnail(r.Context(), session, formID, version)
		if err != nil {
			s.writeServiceError(w, r, "thumbnail", formID, err)
			return
		}
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Data)
	case parts[3] == "publish" && r.Method == http.MethodPost:
		if !s.authorize(w, r, session, rbac.ActionPublish) {
			return
		}
		row, err := s.service.Publish(r.Context(), session, formID, version)
		if err != nil {
			s.writeServiceError(w, r, "publish", formID, err)
			return
		}
		writeJSON(w, http.StatusOK, refView(row))
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", nil)
	}
}

type saveBody struct {
	Title   string          `json:"title"`
	RawJSON json.RawMessage `json:"rawJson"`
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.authorize(w, r, session, rbac.ActionWrite) {
		return
	}
	var body saveBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	row, err := s.service.CreateForm(r.Context(), session, body.Title, body.RawJSON)
	if err != nil {
		s.writeServiceError(w, r, "create", "", err)
		return
	}
	writeJSON(w, http.StatusCreated, refView(row))
}

func (s *HTTPServer) handleEdit(w http.ResponseWriter, r *http.Request, session Session, formID string) {
	if !s.authorize(w, r, session, rbac.ActionWrite) {
		return
	}
	var body saveBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
		return
	}
	row, err := s.service.EditForm(r.Context(), session, formID, body.Title, body.RawJSON)
	if err != nil {
		s.writeServiceError(w, r, "edit", formID, err)
		return
	}
	writeJSON(w, http.StatusOK, refView(row))
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.authorize(w, r, session, rbac.ActionRead) {
		return
	}
	query := r.URL.Query()
	in := ListInput{
		Status: store.Status(strings.ToUpper(firstNonBlank(query.Get("status"), string(store.StatusWIP)))),
		Page:   1,
		Limit:  s.service.pageSize(),
	}
	var ok bool
	if in.Page, ok = intParam(w, query.Get("page"), in.Page, "page"); !ok {
		return
	}
	if in.Limit, ok = intParam(w, query.Get("limit"), in.Limit, "limit"); !ok {
		return
	}

	rows, err := s.service.ListForms(r.Context(), session, in)
	if err != nil {
		s.writeServiceError(w, r, "list", "", err)
		return
	}
	forms := make([]formSummaryView, 0, len(rows))
	for _, row := range rows {
		forms = append(forms, formSummaryView{
			FormID:    row.FormID,
			Version:   row.Version,
			Status:    row.Status,
			Title:     row.Title,
			UpdatedAt: row.UpdatedAt,
			Thumbnail: thumbnailPath(row),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"forms":  forms,
		"page":   in.Page,
		"limit":  in.Limit,
		"status": in.Status,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.authorize(w, r, session, rbac.ActionRead) {
		return
	}
	query := r.URL.Query()
	limit, ok := intParam(w, query.Get("limit"), s.service.pageSize(), "limit")
	if !ok {
		return
	}
	resp, err := s.service.SearchForms(r.Context(), session, query.Get("q"), limit)
	if err != nil {
		s.writeServiceError(w, r, "search", "", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(w http.ResponseWriter, raw string, fallback int, name string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidQuery, name+" must be an integer", nil)
		return 0, false
	}
	return value, true
}

func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) bool {
	if s.service.Can(session.Role, action) {
		return true
	}
	s.log.Info(r.Context(), "permission denied", "user_id", session.UserID, "role", session.Role, "action", action)
	writeError(w, http.StatusForbidden, CodeForbidden, "Forbidden", nil)
	return false
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
		return Session{}, false
	}
	return session, true
}

// writeServiceError maps err to a response. Internal errors are logged with
// the operation and form id; their cause never reaches the client.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, op, formID string, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed", "request_id", RequestID(r.Context()), "op", op, "form_id", formID, "error", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.ShortID(16)
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info(ctx, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
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

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.New("invalid JSON body")
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

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
