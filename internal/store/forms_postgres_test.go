package store

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrent branch attempts against a published row must yield exactly one
// new version; the others either observe the new draft or report a conflict.
func TestConcurrentEditsAfterPublishPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FORMDESK_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FORMDESK_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, Postgres, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, ApplyMigrations(ctx, db, Postgres))

	s := NewSQLStore(db, Postgres)
	formID := uuid.NewString()
	_, err = s.CreateForm(ctx, NewForm{FormID: formID, Title: "Race", RawJSON: []byte(`{}`), CreatedBy: "u1"})
	require.NoError(t, err)
	_, err = s.Publish(ctx, formID, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.EditForm(ctx, FormEdit{FormID: formID, RawJSON: []byte(`{"elements":[]}`), EditedBy: "u1"})
			if err != nil {
				assert.ErrorIs(t, err, ErrConflict)
			}
		}()
	}
	wg.Wait()

	latest, err := s.GetLatest(ctx, formID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, StatusWIP, latest.Status)
}
