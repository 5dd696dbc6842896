package store

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusWIP     Status = "WIP"
	StatusPublish Status = "PUBLISH"
)

func (s Status) Valid() bool {
	return s == StatusWIP || s == StatusPublish
}

// FormVersion is one persisted snapshot of a form. Only the highest version
// of a form may change, and only while it is WIP.
type FormVersion struct {
	FormID    string
	Version   int
	Status    Status
	Title     string
	RawJSON   json.RawMessage
	Thumbnail string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewForm is the input for the first save of a form.
type NewForm struct {
	FormID    string
	Title     string
	RawJSON   json.RawMessage
	Thumbnail string
	CreatedBy string
}

// FormEdit is the input for a save against an existing form. An empty Title
// keeps the current one. When the edit branches a published version, a
// non-empty Title replaces the title carried forward from that version.
type FormEdit struct {
	FormID    string
	Title     string
	RawJSON   json.RawMessage
	Thumbnail string
	EditedBy  string
}
