package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/api/internal/auth"
	"formdesk/api/internal/config"
	"formdesk/api/internal/logging"
	"formdesk/api/internal/rbac"
	"formdesk/api/internal/store"
)

const testSecret = "test-secret"

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *store.SQLStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.SQLite, "file:"+filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.SQLite))

	sqlStore := store.NewSQLStore(db, store.SQLite)
	svc := NewService(config.Config{JWTSecret: testSecret, PageSize: 20, LockWait: time.Second}, Deps{
		Store:  sqlStore,
		Logger: logging.Discard(),
	})
	return &testAPI{t: t, handler: NewHTTPServer(svc, "*").Handler(), store: sqlStore}
}

func token(t *testing.T, userID string, role rbac.Role) string {
	t.Helper()
	tok, err := auth.IssueToken([]byte(testSecret), userID, userID, string(role), time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		encoded, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestDraftPublishBranchScenario(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RolePublisher)
	x := map[string]any{"id": "x", "type": "text", "label": "Name"}
	y := map[string]any{"id": "y", "type": "submit", "label": "Send"}

	rec := api.do(http.MethodPost, "/forms", tok, map[string]any{
		"title":   "T",
		"rawJson": map[string]any{"elements": []any{}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	formID, _ := created["formId"].(string)
	require.NotEmpty(t, formID)
	assert.EqualValues(t, 1, created["version"])
	assert.Equal(t, "WIP", created["status"])

	rec = api.do(http.MethodPut, "/forms/"+formID, tok, map[string]any{
		"rawJson": map[string]any{"elements": []any{x}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode(t, rec)
	assert.EqualValues(t, 1, edited["version"])
	assert.Equal(t, "WIP", edited["status"])

	rec = api.do(http.MethodPost, "/forms/"+formID+"/1/publish", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PUBLISH", decode(t, rec)["status"])

	rec = api.do(http.MethodPut, "/forms/"+formID, tok, map[string]any{
		"rawJson": map[string]any{"elements": []any{x, y}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	branched := decode(t, rec)
	assert.EqualValues(t, 2, branched["version"])
	assert.Equal(t, "WIP", branched["status"])

	rec = api.do(http.MethodGet, "/forms/"+formID+"/1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	published := decode(t, rec)
	assert.Equal(t, "PUBLISH", published["status"])
	assert.Equal(t, "T", published["title"])
	assert.Equal(t, "u1", published["createdBy"])
	rawJSON, err := json.Marshal(published["rawJson"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"elements":[{"id":"x","type":"text","label":"Name"}]}`, string(rawJSON))

	rec = api.do(http.MethodGet, "/forms/"+formID, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode(t, rec)
	assert.EqualValues(t, 2, latest["version"])
	assert.Equal(t, "T", latest["title"])
	assert.Len(t, latest["rawJson"].(map[string]any)["elements"], 2)

	rec = api.do(http.MethodPost, "/forms/"+formID+"/1/publish", tok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeConflict, decode(t, rec)["code"])
}

func TestCreateFormValidation(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RoleEditor)

	tests := []struct {
		name string
		body any
		code string
	}{
		{name: "empty title", body: map[string]any{"title": " ", "rawJson": map[string]any{}}, code: CodeInvalidTitle},
		{name: "array data", body: map[string]any{"title": "T", "rawJson": []any{}}, code: CodeInvalidData},
		{name: "null data", body: `{"title":"T","rawJson":null}`, code: CodeInvalidData},
		{name: "missing data", body: map[string]any{"title": "T"}, code: CodeInvalidData},
		{name: "not json", body: `title=T`, code: CodeInvalidBody},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/forms", tok, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}

	rows, err := api.store.ListByOwnerAndStatus(context.Background(), "u1", store.StatusWIP, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEditUnknownFormIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPut, "/forms/missing", token(t, "u1", rbac.RoleEditor), map[string]any{
		"rawJson": map[string]any{"elements": []any{}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode(t, rec)["code"])
}

func TestFormsAreScopedToOwner(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/forms", token(t, "alice", rbac.RoleEditor), map[string]any{
		"title": "Private", "rawJson": map[string]any{},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	formID := decode(t, rec)["formId"].(string)

	bob := token(t, "bob", rbac.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/forms/"+formID+"/1", bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/forms/"+formID, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPut, "/forms/"+formID, bob, map[string]any{"rawJson": map[string]any{}}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/forms/"+formID+"/1/publish", bob, nil).Code)
}

func TestAuthAndPermissions(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/forms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decode(t, rec)["code"])

	rec = api.do(http.MethodGet, "/forms", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := auth.IssueToken([]byte(testSecret), "u1", "u1", "editor", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/forms", expired, nil).Code)

	viewer := token(t, "u1", rbac.RoleViewer)
	rec = api.do(http.MethodPost, "/forms", viewer, map[string]any{"title": "T", "rawJson": map[string]any{}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decode(t, rec)["code"])

	editor := token(t, "u1", rbac.RoleEditor)
	rec = api.do(http.MethodPost, "/forms", editor, map[string]any{"title": "T", "rawJson": map[string]any{}})
	require.Equal(t, http.StatusCreated, rec.Code)
	formID := decode(t, rec)["formId"].(string)

	rec = api.do(http.MethodPost, "/forms/"+formID+"/1/publish", editor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/forms/"+formID+"/1", viewer, nil).Code)
}

func TestListFormsPaginatesByStatus(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RolePublisher)
	ids := make([]string, 0, 3)
	for _, title := range []string{"One", "Two", "Three"} {
		rec := api.do(http.MethodPost, "/forms", tok, map[string]any{"title": title, "rawJson": map[string]any{}})
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decode(t, rec)["formId"].(string))
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/forms/"+ids[0]+"/1/publish", tok, nil).Code)

	rec := api.do(http.MethodGet, "/forms?limit=1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode(t, rec)
	assert.Equal(t, "WIP", page["status"])
	assert.EqualValues(t, 1, page["page"])
	assert.Len(t, page["forms"], 1)

	rec = api.do(http.MethodGet, "/forms?limit=1&page=2", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["forms"], 1)

	rec = api.do(http.MethodGet, "/forms?limit=1&page=3", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["forms"])

	rec = api.do(http.MethodGet, "/forms?status=publish", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	published := decode(t, rec)["forms"].([]any)
	require.Len(t, published, 1)
	assert.Equal(t, ids[0], published[0].(map[string]any)["formId"])

	for _, query := range []string{"?page=0", "?page=x", "?limit=500", "?status=DRAFT"} {
		rec := api.do(http.MethodGet, "/forms"+query, tok, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, CodeInvalidQuery, decode(t, rec)["code"], query)
	}
}

func TestSearchFallsBackToStore(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RoleEditor)
	for _, title := range []string{"Patient intake", "Feedback"} {
		rec := api.do(http.MethodPost, "/forms", tok, map[string]any{"title": title, "rawJson": map[string]any{}})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.do(http.MethodGet, "/forms/search?q=intake", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Patient intake", results[0].(map[string]any)["title"])

	rec = api.do(http.MethodGet, "/forms/search?q=", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThumbnailDownload(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RoleEditor)
	rec := api.do(http.MethodPost, "/forms", tok, map[string]any{
		"title": "Preview",
		"rawJson": map[string]any{
			"title":    "Preview",
			"elements": []any{map[string]any{"id": "a", "type": "text", "label": "Email address"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	formID := decode(t, rec)["formId"].(string)

	rec = api.do(http.MethodGet, "/forms/"+formID+"/1", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/forms/"+formID+"/1/thumbnail", decode(t, rec)["thumbnail"])

	rec = api.do(http.MethodGet, "/forms/"+formID+"/1/thumbnail", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Email address")
}

func TestVersionPathValidation(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RoleEditor)
	for _, path := range []string{"/forms/f1/0", "/forms/f1/abc", "/forms/f1/9", "/forms/f1/1/unknown", "/elsewhere"} {
		rec := api.do(http.MethodGet, path, tok, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodDelete, "/forms", tok, nil).Code)
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = api.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	rec = api.do(http.MethodOptions, "/forms", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadyReportsDatabaseFailure(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.store.DB().Close())

	rec := api.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	api := newTestAPI(t)
	tok := token(t, "u1", rbac.RoleEditor)
	require.NoError(t, api.store.DB().Close())

	rec := api.do(http.MethodPost, "/forms", tok, map[string]any{"title": "T", "rawJson": map[string]any{}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeInternal, body["code"])
	assert.Equal(t, "Internal error", body["error"])
}
