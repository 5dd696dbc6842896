package search

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formdesk/api/internal/logging"
	"formdesk/api/internal/store"
)

type fakeFallback struct {
	searchByTitleFn func(context.Context, string, string, int) ([]store.FormVersion, error)
}

func (f *fakeFallback) SearchByTitle(ctx context.Context, ownerID, query string, limit int) ([]store.FormVersion, error) {
	if f.searchByTitleFn != nil {
		return f.searchByTitleFn(ctx, ownerID, query, limit)
	}
	return nil, nil
}

type fakeIndex struct {
	healthy     bool
	searchFn    func(Query) ([]Result, int, error)
	indexFormFn func(FormRecord)

	mu      sync.Mutex
	indexed []FormRecord
	done    chan struct{}
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(q Query) ([]Result, int, error) {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return nil, 0, nil
}

func (f *fakeIndex) IndexForm(rec FormRecord) error {
	if f.indexFormFn != nil {
		f.indexFormFn(rec)
	}
	f.mu.Lock()
	f.indexed = append(f.indexed, rec)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

func TestSearchUsesIndexWhenHealthy(t *testing.T) {
	fallbackCalled := false
	s := NewService(nil, &fakeFallback{searchByTitleFn: func(context.Context, string, string, int) ([]store.FormVersion, error) {
		fallbackCalled = true
		return nil, nil
	}}, logging.Discard())
	s.index = &fakeIndex{healthy: true, searchFn: func(q Query) ([]Result, int, error) {
		assert.Equal(t, "intake", q.Text)
		assert.Equal(t, "u1", q.OwnerID)
		assert.Equal(t, 20, q.Limit)
		return []Result{{FormID: "f1", Title: "Intake"}}, 1, nil
	}}

	resp, err := s.Search(context.Background(), Query{Text: "  intake ", OwnerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "intake", resp.Query)
	assert.False(t, fallbackCalled)
}

func TestSearchFallsBackToStore(t *testing.T) {
	fb := &fakeFallback{searchByTitleFn: func(_ context.Context, owner, q string, limit int) ([]store.FormVersion, error) {
		assert.Equal(t, "u1", owner)
		assert.Equal(t, 5, limit)
		return []store.FormVersion{{FormID: "f1", Title: "Intake", Status: store.StatusPublish, Version: 2}}, nil
	}}

	for name, idx := range map[string]*fakeIndex{
		"no index":  nil,
		"unhealthy": {healthy: false},
		"erroring": {healthy: true, searchFn: func(Query) ([]Result, int, error) {
			return nil, 0, errors.New("boom")
		}},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewService(nil, fb, logging.Discard())
			if idx != nil {
				s.index = idx
			}
			resp, err := s.Search(context.Background(), Query{Text: "intake", OwnerID: "u1", Limit: 5})
			require.NoError(t, err)
			require.Len(t, resp.Results, 1)
			assert.Equal(t, Result{FormID: "f1", Title: "Intake", Status: "PUBLISH", Version: 2}, resp.Results[0])
		})
	}
}

func TestSearchReturnsEmptySliceNotNil(t *testing.T) {
	s := NewService(nil, &fakeFallback{}, logging.Discard())
	resp, err := s.Search(context.Background(), Query{Text: "x", OwnerID: "u1"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearchPropagatesFallbackError(t *testing.T) {
	s := NewService(nil, &fakeFallback{searchByTitleFn: func(context.Context, string, string, int) ([]store.FormVersion, error) {
		return nil, errors.New("db down")
	}}, logging.Discard())
	_, err := s.Search(context.Background(), Query{Text: "x", OwnerID: "u1"})
	assert.Error(t, err)
}

func TestIndexFormPushesRecord(t *testing.T) {
	idx := &fakeIndex{healthy: true, done: make(chan struct{})}
	s := NewService(nil, &fakeFallback{}, logging.Discard())
	s.index = idx

	s.IndexForm(context.Background(), store.FormVersion{FormID: "f1", Title: "Intake", Status: store.StatusWIP, CreatedBy: "u1", Version: 3})

	select {
	case <-idx.done:
	case <-time.After(2 * time.Second):
		t.Fatal("form was not indexed")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.Equal(t, []FormRecord{{ID: "f1", Title: "Intake", Status: "WIP", OwnerID: "u1", Version: 3}}, idx.indexed)
}

func TestIndexFormSkipsUnhealthyIndex(t *testing.T) {
	idx := &fakeIndex{healthy: false}
	s := NewService(nil, &fakeFallback{}, logging.Discard())
	s.index = idx
	s.IndexForm(context.Background(), store.FormVersion{FormID: "f1"})
	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.Empty(t, idx.indexed)
}

func TestIndexFormWritesLatestVersionLast(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	idx := &fakeIndex{healthy: true, indexFormFn: func(FormRecord) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}}
	s := NewService(nil, &fakeFallback{}, logging.Discard())
	s.index = idx

	s.IndexForm(context.Background(), store.FormVersion{FormID: "f1", Version: 1})
	<-entered
	s.IndexForm(context.Background(), store.FormVersion{FormID: "f1", Version: 2})
	s.IndexForm(context.Background(), store.FormVersion{FormID: "f1", Version: 3})
	close(release)

	versions := func() []int {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		out := make([]int, 0, len(idx.indexed))
		for _, rec := range idx.indexed {
			out = append(out, rec.Version)
		}
		return out
	}
	require.Eventually(t, func() bool { return len(versions()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{1, 3}, versions(), "queued versions collapse to the newest")

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.running) == 0 && len(s.pending) == 0
	}, 2*time.Second, 10*time.Millisecond, "worker exits once the queue is empty")
}

func TestOwnerFilterQuotes(t *testing.T) {
	assert.Equal(t, `ownerId = "u\"1"`, ownerFilter(`u"1`))
}

func TestMeiliRoundTrip(t *testing.T) {
	url := os.Getenv("FORMDESK_TEST_MEILI_URL")
	if url == "" {
		t.Skip("FORMDESK_TEST_MEILI_URL is not set")
	}
	m := NewMeili(url, os.Getenv("FORMDESK_TEST_MEILI_KEY"), logging.Discard())
	defer m.Close()
	require.True(t, m.Healthy())

	t.Cleanup(func() {
		_, _ = m.client.Index(idxForms).DeleteDocument("meili-test", nil)
	})

	require.NoError(t, m.IndexForm(FormRecord{ID: "meili-test", Title: "Vendor onboarding", Status: "WIP", OwnerID: "owner-test", Version: 1}))
	require.Eventually(t, func() bool {
		results, _, err := m.Search(Query{Text: "vendor", OwnerID: "owner-test"})
		return err == nil && len(results) == 1 && results[0].FormID == "meili-test"
	}, 10*time.Second, 200*time.Millisecond)
}
