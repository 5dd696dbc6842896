package designer

import (
	"context"
	"encoding/json"
	"time"
)

// Ref identifies the persisted version a session is editing.
type Ref struct {
	FormID  string `json:"formId"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

// Form is one stored version as returned by the store.
type Form struct {
	Ref
	Title     string          `json:"title,omitempty"`
	RawJSON   json.RawMessage `json:"rawJson"`
	Thumbnail string          `json:"thumbnail"`
	CreatedBy string          `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is the persistence port of a session. The store decides whether an
// edit mutates the current draft or branches a new version.
type Store interface {
	CreateForm(ctx context.Context, title string, rawJSON json.RawMessage) (Ref, error)
	EditForm(ctx context.Context, formID, title string, rawJSON json.RawMessage) (Ref, error)
	GetForm(ctx context.Context, formID string, version int) (Form, error)
}
