package designer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"formdesk/api/internal/canvas"
)

var (
	ErrTitleRequired  = errors.New("title is required")
	ErrSaveInProgress = errors.New("a save is already in progress")
)

// Session is one user's editing session of a form: the canvas, the title and
// logo fields, and the identity of the version being edited. It is the only
// owner of its canvas.
type Session struct {
	store   Store
	encoder Encoder

	saving sync.Mutex

	mu     sync.Mutex
	canvas *canvas.Canvas
	title  string
	logo   *canvas.Asset
	ref    Ref
}

type Option func(*Session)

func WithEncoder(e Encoder) Option {
	return func(s *Session) {
		s.encoder = e
	}
}

func NewSession(store Store, opts ...Option) *Session {
	s := &Session{
		store:   store,
		encoder: DataURLEncoder{},
		canvas:  canvas.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Canvas returns the session's ordering model for editing commands.
func (s *Session) Canvas() *canvas.Canvas {
	return s.canvas
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = strings.TrimSpace(title)
}

func (s *Session) Logo() *canvas.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logo
}

func (s *Session) SetLogo(logo *canvas.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logo = logo
}

// Ref reports the version the session is bound to. ok is false until the
// first successful save or load.
func (s *Session) Ref() (ref Ref, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref, s.ref.FormID != ""
}

// Bind points the session at an existing form so the next save edits it.
func (s *Session) Bind(formID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ref = Ref{FormID: formID}
}

// Save persists the session: transient assets are encoded first, then the
// snapshot is created or edited and the returned version becomes the
// session's identity. A save, load or import started while a save is
// running fails with ErrSaveInProgress.
func (s *Session) Save(ctx context.Context) (Ref, error) {
	if !s.saving.TryLock() {
		return Ref{}, ErrSaveInProgress
	}
	defer s.saving.Unlock()

	s.mu.Lock()
	title := s.title
	formID := s.ref.FormID
	s.mu.Unlock()

	if title == "" {
		return Ref{}, ErrTitleRequired
	}
	if err := s.resolveAssets(ctx); err != nil {
		return Ref{}, err
	}

	raw, err := s.snapshot().Marshal()
	if err != nil {
		return Ref{}, err
	}

	var ref Ref
	if formID == "" {
		ref, err = s.store.CreateForm(ctx, title, raw)
	} else {
		ref, err = s.store.EditForm(ctx, formID, title, raw)
	}
	if err != nil {
		return Ref{}, err
	}

	s.mu.Lock()
	s.ref = ref
	s.mu.Unlock()
	return ref, nil
}

// resolveAssets encodes every transient asset. Nothing is written back
// unless all encodings succeed, and each result is written back by element
// id so edits made while encoding are kept.
func (s *Session) resolveAssets(ctx context.Context) error {
	s.mu.Lock()
	logo := s.logo
	s.mu.Unlock()

	type resolution struct {
		id           string
		old, durable *canvas.Asset
	}
	var resolved []resolution
	for _, e := range s.canvas.List() {
		durable, ok, err := s.resolve(ctx, e.Asset)
		if err != nil {
			return fmt.Errorf("element %s: %w", e.ID, err)
		}
		if ok {
			resolved = append(resolved, resolution{id: e.ID, old: e.Asset, durable: durable})
		}
	}
	resolvedLogo, logoChanged, err := s.resolve(ctx, logo)
	if err != nil {
		return fmt.Errorf("logo: %w", err)
	}

	for _, r := range resolved {
		s.canvas.ReplaceAsset(r.id, r.old, r.durable)
	}
	if logoChanged {
		s.mu.Lock()
		if s.logo == logo {
			s.logo = resolvedLogo
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) resolve(ctx context.Context, asset *canvas.Asset) (*canvas.Asset, bool, error) {
	ref, ok := asset.Transient()
	if !ok {
		return asset, false, nil
	}
	src, err := s.encoder.Encode(ctx, ref)
	if err != nil {
		return nil, false, fmt.Errorf("encode asset: %w", err)
	}
	durable := canvas.DurableAsset(src)
	durable.Name = asset.Name
	return durable, true, nil
}

func (s *Session) snapshot() canvas.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return canvas.Snapshot{
		Title:    s.title,
		Logo:     s.logo,
		Elements: s.canvas.List(),
	}
}

// Load replaces the session's contents with the stored snapshot of
// formID at version and binds the session to that version.
func (s *Session) Load(ctx context.Context, formID string, version int) error {
	if !s.saving.TryLock() {
		return ErrSaveInProgress
	}
	defer s.saving.Unlock()

	form, err := s.store.GetForm(ctx, formID, version)
	if err != nil {
		return err
	}
	snapshot, err := canvas.ParseSnapshot(form.RawJSON)
	if err != nil {
		return fmt.Errorf("load %s v%d: %w", formID, version, err)
	}
	if snapshot.Title == "" {
		snapshot.Title = form.Title
	}
	if err := s.apply(snapshot); err != nil {
		return fmt.Errorf("load %s v%d: %w", formID, version, err)
	}

	s.mu.Lock()
	s.ref = form.Ref
	s.mu.Unlock()
	return nil
}

// Export writes the session as a portable document in the stored snapshot
// shape. Unresolved transient assets make it fail.
func (s *Session) Export(w io.Writer) error {
	raw, err := s.snapshot().Marshal()
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return fmt.Errorf("format export: %w", err)
	}
	pretty.WriteByte('\n')
	if _, err := pretty.WriteTo(w); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// Import replaces the session's contents with an exported document. The
// session's bound identity is left unchanged.
func (s *Session) Import(r io.Reader) error {
	if !s.saving.TryLock() {
		return ErrSaveInProgress
	}
	defer s.saving.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	snapshot, err := canvas.ParseSnapshot(data)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := s.apply(snapshot); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

func (s *Session) apply(snapshot canvas.Snapshot) error {
	if err := s.canvas.Reset(snapshot.Elements); err != nil {
		return err
	}
	s.mu.Lock()
	s.title = strings.TrimSpace(snapshot.Title)
	s.logo = snapshot.Logo
	s.mu.Unlock()
	return nil
}
