package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"formdesk/api/internal/auth"
	"formdesk/api/internal/blob"
	"formdesk/api/internal/canvas"
	"formdesk/api/internal/config"
	"formdesk/api/internal/lock"
	"formdesk/api/internal/logging"
	"formdesk/api/internal/rbac"
	"formdesk/api/internal/search"
	"formdesk/api/internal/store"
	"formdesk/api/internal/thumbnail"
	"formdesk/api/internal/util"
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID    string
	UserName  string
	Role      rbac.Role
	ExpiresAt time.Time
}

type formStore interface {
	CreateForm(context.Context, store.NewForm) (store.FormVersion, error)
	EditForm(context.Context, store.FormEdit) (store.FormVersion, error)
	Publish(context.Context, string, int) (store.FormVersion, error)
	GetByVersion(context.Context, string, int) (store.FormVersion, error)
	GetLatest(context.Context, string) (store.FormVersion, error)
	ListByOwnerAndStatus(context.Context, string, store.Status, int, int) ([]store.FormVersion, error)
	SearchByTitle(context.Context, string, string, int) ([]store.FormVersion, error)
	Ping(context.Context) error
}

type formSearch interface {
	Search(context.Context, search.Query) (search.Response, error)
	IndexForm(context.Context, store.FormVersion)
}

// Deps are the collaborators of a Service. Nil fields fall back to
// in-process implementations.
type Deps struct {
	Store      formStore
	Locker     lock.Locker
	Thumbnails thumbnail.Generator
	Blobs      blob.Store
	Search     formSearch
	Logger     logging.Logger
}

type Service struct {
	cfg    config.Config
	store  formStore
	locker lock.Locker
	thumbs thumbnail.Generator
	blobs  blob.Store
	search formSearch
	log    logging.Logger
	newID  func() string
}

func NewService(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:    cfg,
		store:  deps.Store,
		locker: deps.Locker,
		thumbs: deps.Thumbnails,
		blobs:  deps.Blobs,
		search: deps.Search,
		log:    deps.Logger,
		newID:  func() string { return util.NewID("") },
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.locker == nil {
		s.locker = lock.NewLocalLocker(cfg.LockWait)
	}
	if s.thumbs == nil {
		s.thumbs = thumbnail.HTMLGenerator{}
	}
	if s.blobs == nil {
		s.blobs = blob.InlineStore{}
	}
	if s.search == nil {
		s.search = search.NewService(nil, deps.Store, s.log)
	}
	return s
}

// Ready pings the database and, when it can be pinged, the lock backend.
func (s *Service) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if p, ok := s.locker.(interface{ Ping(context.Context) error }); ok {
		checks["lock"] = p.Ping(ctx)
	}
	return checks
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		UserID:   claims.UserID(),
		UserName: claims.Name,
		Role:     rbac.Normalize(claims.Role),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func validateSnapshot(title string, raw json.RawMessage, titleRequired bool) error {
	if titleRequired && strings.TrimSpace(title) == "" {
		return domainError(http.StatusBadRequest, CodeInvalidTitle, "Title is required", nil)
	}
	if !canvas.IsObject(raw) {
		return domainError(http.StatusBadRequest, CodeInvalidData, "rawJson must be a JSON object", nil)
	}
	return nil
}

// CreateForm saves the first version of a new form owned by the caller.
func (s *Service) CreateForm(ctx context.Context, session Session, title string, raw json.RawMessage) (store.FormVersion, error) {
	if err := validateSnapshot(title, raw, true); err != nil {
		return store.FormVersion{}, err
	}
	formID := s.newID()
	row, err := s.store.CreateForm(ctx, store.NewForm{
		FormID:    formID,
		Title:     title,
		RawJSON:   raw,
		Thumbnail: s.renderThumbnail(ctx, formID, raw),
		CreatedBy: session.UserID,
	})
	if err != nil {
		return store.FormVersion{}, err
	}
	s.search.IndexForm(ctx, row)
	s.log.Info(ctx, "form created", "form_id", row.FormID, "version", row.Version, "user_id", session.UserID)
	return row, nil
}

// EditForm saves the caller's canvas over the latest version: a draft is
// updated in place and a published version is branched. Saves of one form
// are serialized.
func (s *Service) EditForm(ctx context.Context, session Session, formID, title string, raw json.RawMessage) (store.FormVersion, error) {
	if err := validateSnapshot(title, raw, false); err != nil {
		return store.FormVersion{}, err
	}
	if _, err := s.ownedLatest(ctx, session, formID); err != nil {
		return store.FormVersion{}, err
	}

	release, err := s.locker.Acquire(ctx, formID)
	if err != nil {
		return store.FormVersion{}, err
	}
	defer s.release(ctx, formID, release)

	row, err := s.store.EditForm(ctx, store.FormEdit{
		FormID:    formID,
		Title:     title,
		RawJSON:   raw,
		Thumbnail: s.renderThumbnail(ctx, formID, raw),
		EditedBy:  session.UserID,
	})
	if err != nil {
		return store.FormVersion{}, err
	}
	s.search.IndexForm(ctx, row)
	s.log.Info(ctx, "form saved", "form_id", row.FormID, "version", row.Version, "status", row.Status)
	return row, nil
}

// Publish freezes the latest draft of a form.
func (s *Service) Publish(ctx context.Context, session Session, formID string, version int) (store.FormVersion, error) {
	if _, err := s.GetForm(ctx, session, formID, version); err != nil {
		return store.FormVersion{}, err
	}

	release, err := s.locker.Acquire(ctx, formID)
	if err != nil {
		return store.FormVersion{}, err
	}
	defer s.release(ctx, formID, release)

	row, err := s.store.Publish(ctx, formID, version)
	if err != nil {
		return store.FormVersion{}, err
	}
	s.search.IndexForm(ctx, row)
	s.log.Info(ctx, "form published", "form_id", row.FormID, "version", row.Version)
	return row, nil
}

func (s *Service) GetForm(ctx context.Context, session Session, formID string, version int) (store.FormVersion, error) {
	row, err := s.store.GetByVersion(ctx, formID, version)
	if err != nil {
		return store.FormVersion{}, err
	}
	if row.CreatedBy != session.UserID {
		return store.FormVersion{}, errNotFound()
	}
	return row, nil
}

func (s *Service) GetLatestForm(ctx context.Context, session Session, formID string) (store.FormVersion, error) {
	return s.ownedLatest(ctx, session, formID)
}

func (s *Service) ownedLatest(ctx context.Context, session Session, formID string) (store.FormVersion, error) {
	row, err := s.store.GetLatest(ctx, formID)
	if err != nil {
		return store.FormVersion{}, err
	}
	if row.CreatedBy != session.UserID {
		return store.FormVersion{}, errNotFound()
	}
	return row, nil
}

// Thumbnail returns the stored preview of a form version.
func (s *Service) Thumbnail(ctx context.Context, session Session, formID string, version int) (blob.Object, error) {
	row, err := s.GetForm(ctx, session, formID, version)
	if err != nil {
		return blob.Object{}, err
	}
	if row.Thumbnail == "" {
		return blob.Object{}, errNotFound()
	}
	return s.blobs.Get(ctx, row.Thumbnail)
}

type ListInput struct {
	Status store.Status
	Page   int
	Limit  int
}

func (s *Service) ListForms(ctx context.Context, session Session, in ListInput) ([]store.FormVersion, error) {
	if !in.Status.Valid() {
		return nil, domainError(http.StatusBadRequest, CodeInvalidQuery, "status must be WIP or PUBLISH", nil)
	}
	if in.Page < 1 {
		return nil, domainError(http.StatusBadRequest, CodeInvalidQuery, "page must be a positive integer", nil)
	}
	if in.Limit < 1 || in.Limit > maxPageSize {
		return nil, domainError(http.StatusBadRequest, CodeInvalidQuery, "limit must be between 1 and 100", nil)
	}
	return s.store.ListByOwnerAndStatus(ctx, session.UserID, in.Status, in.Limit, (in.Page-1)*in.Limit)
}

func (s *Service) SearchForms(ctx context.Context, session Session, query string, limit int) (search.Response, error) {
	if strings.TrimSpace(query) == "" {
		return search.Response{}, domainError(http.StatusBadRequest, CodeInvalidQuery, "q is required", nil)
	}
	if limit < 1 || limit > maxPageSize {
		return search.Response{}, domainError(http.StatusBadRequest, CodeInvalidQuery, "limit must be between 1 and 100", nil)
	}
	return s.search.Search(ctx, search.Query{Text: query, OwnerID: session.UserID, Limit: limit})
}

const maxPageSize = 100

func (s *Service) pageSize() int {
	if s.cfg.PageSize > 0 && s.cfg.PageSize <= maxPageSize {
		return s.cfg.PageSize
	}
	return 20
}

// renderThumbnail renders and stores a preview. Failures are logged and
// yield an empty thumbnail so they never block a save.
func (s *Service) renderThumbnail(ctx context.Context, formID string, raw json.RawMessage) string {
	if timeout := s.cfg.ThumbnailTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	art, err := s.thumbs.Generate(ctx, raw)
	if err != nil {
		level := s.log.Warn
		if errors.Is(err, thumbnail.ErrRendererMissing) {
			level = s.log.Debug
		}
		level(ctx, "thumbnail generation failed", "form_id", formID, "error", err)
		return ""
	}
	ref, err := s.blobs.Put(ctx, blob.Object{Data: art.Data, ContentType: art.ContentType})
	if err != nil {
		s.log.Warn(ctx, "thumbnail upload failed", "form_id", formID, "error", err)
		return ""
	}
	return ref
}

func (s *Service) release(ctx context.Context, formID string, release lock.Release) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn(ctx, "release form lock", "form_id", formID, "error", err)
	}
}
