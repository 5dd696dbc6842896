package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/api/internal/app"
	"formdesk/api/internal/auth"
	"formdesk/api/internal/canvas"
	"formdesk/api/internal/config"
	"formdesk/api/internal/designer"
	"formdesk/api/internal/store"
)

const secret = "client-test-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.SQLite, "file:"+filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(ctx, db, store.SQLite))

	svc := app.NewService(config.Config{JWTSecret: secret, PageSize: 20, LockWait: time.Second}, app.Deps{
		Store: store.NewSQLStore(db, store.SQLite),
	})
	server := httptest.NewServer(app.NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, server *httptest.Server, userID, role string) *Client {
	t.Helper()
	tok, err := auth.IssueToken([]byte(secret), userID, userID, role, time.Hour)
	require.NoError(t, err)
	return New(server.URL, tok, WithHTTPClient(server.Client()))
}

func TestSessionRoundTripThroughAPI(t *testing.T) {
	server := newServer(t)
	c := newClient(t, server, "u1", "publisher")
	ctx := context.Background()

	session := designer.NewSession(c)
	session.SetTitle("Signup")
	name := canvas.NewElement(canvas.TypeText)
	name.Label = "Name"
	require.NoError(t, session.Canvas().InsertAt(name, 0))
	session.SetLogo(canvas.TransientAsset(canvas.TransientRef{
		Name:      "logo.png",
		MediaType: "image/png",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte("\x89PNG\r\n\x1a\nfake"))), nil
		},
	}))

	ref, err := session.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Version)
	assert.Equal(t, "WIP", ref.Status)
	_, pending := session.Logo().Transient()
	assert.False(t, pending)

	submit := canvas.NewElement(canvas.TypeSubmit)
	require.NoError(t, session.Canvas().InsertAt(submit, 1))
	ref, err = session.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ref.Version)

	published, err := c.Publish(ctx, ref.FormID, 1)
	require.NoError(t, err)
	assert.Equal(t, "PUBLISH", published.Status)

	session.Canvas().Remove(name.ID)
	ref, err = session.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ref.Version)
	assert.Equal(t, "WIP", ref.Status)

	reloaded := designer.NewSession(c)
	require.NoError(t, reloaded.Load(ctx, ref.FormID, 1))
	assert.Equal(t, "Signup", reloaded.Title())
	require.Len(t, reloaded.Canvas().List(), 2)
	assert.Equal(t, name.ID, reloaded.Canvas().List()[0].ID)
	assert.Contains(t, reloaded.Logo().Src, "data:image/png;base64,")

	latest, err := c.GetLatest(ctx, ref.FormID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "u1", latest.CreatedBy)
}

func TestListSearchAndThumbnail(t *testing.T) {
	server := newServer(t)
	c := newClient(t, server, "u1", "editor")
	ctx := context.Background()

	ref, err := c.CreateForm(ctx, "Visitor log", []byte(`{"title":"Visitor log","elements":[]}`))
	require.NoError(t, err)

	page, err := c.ListForms(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "WIP", page.Status)
	require.Len(t, page.Forms, 1)
	assert.Equal(t, ref.FormID, page.Forms[0].FormID)

	found, err := c.Search(ctx, "visitor", 5)
	require.NoError(t, err)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "Visitor log", found.Results[0].Title)

	data, contentType, err := c.Thumbnail(ctx, ref.FormID, 1)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", contentType)
	assert.Contains(t, string(data), "Visitor log")
}

func TestAPIErrors(t *testing.T) {
	server := newServer(t)
	ctx := context.Background()

	anonymous := New(server.URL, "", WithHTTPClient(server.Client()))
	_, err := anonymous.ListForms(ctx, "", 0, 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)

	c := newClient(t, server, "u1", "editor")
	_, err = c.GetForm(ctx, "missing", 1)
	assert.True(t, IsCode(err, "NOT_FOUND"))

	_, err = c.CreateForm(ctx, "", []byte(`{}`))
	assert.True(t, IsCode(err, "INVALID_TITLE"))

	_, err = c.Publish(ctx, "missing", 1)
	assert.True(t, IsCode(err, "FORBIDDEN"))
}
