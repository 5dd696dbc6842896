package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrTransientAsset is returned when an asset still backed by a session-scoped
// handle is about to cross the persistence boundary.
var ErrTransientAsset = errors.New("transient asset must be resolved before it is persisted")

// TransientRef is a handle to a resource that only lives as long as the
// current editing session, such as an upload that has not been encoded yet.
type TransientRef struct {
	Name      string
	MediaType string
	Open      func() (io.ReadCloser, error)
}

// Asset is an image or file attached to the canvas. It is either durable
// (Src holds an encoded value or URL) or transient (backed by a TransientRef).
type Asset struct {
	Src  string
	Name string
	ref  *TransientRef
}

func DurableAsset(src string) *Asset {
	return &Asset{Src: src}
}

func TransientAsset(ref TransientRef) *Asset {
	return &Asset{Name: ref.Name, ref: &ref}
}

// Transient returns the pending handle, if the asset has not been resolved.
func (a *Asset) Transient() (TransientRef, bool) {
	if a == nil || a.ref == nil {
		return TransientRef{}, false
	}
	return *a.ref, true
}

// Resolve replaces the transient handle with its durable encoding.
func (a *Asset) Resolve(src string) {
	a.Src = src
	a.ref = nil
}

type assetJSON struct {
	Src  string `json:"src"`
	Name string `json:"name,omitempty"`
}

func (a Asset) MarshalJSON() ([]byte, error) {
	if a.ref != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransientAsset, a.Name)
	}
	return json.Marshal(assetJSON{Src: a.Src, Name: a.Name})
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var raw assetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.HasPrefix(raw.Src, "blob:") {
		// Session-scoped handles written by other tools are dead once read back.
		return fmt.Errorf("%w: %s", ErrTransientAsset, raw.Src)
	}
	a.Src = raw.Src
	a.Name = raw.Name
	a.ref = nil
	return nil
}
