package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"formdesk/api/internal/canvas"
)

var (
	ErrNotFound     = errors.New("form version not found")
	ErrInvalidTitle = errors.New("title is required")
	ErrInvalidData  = errors.New("rawJson must be a JSON object")
	// ErrConflict means the latest row changed between read and write.
	ErrConflict = errors.New("form version changed concurrently")
)

const formColumns = `form_id, version, status, title, raw_json, thumbnail, created_by, created_at, updated_at`

// SQLStore keeps form versions in a SQL database and implements the
// draft/publish state machine.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func validate(title string, raw []byte, titleRequired bool) error {
	if titleRequired && strings.TrimSpace(title) == "" {
		return ErrInvalidTitle
	}
	if !canvas.IsObject(raw) {
		return ErrInvalidData
	}
	return nil
}

// CreateForm inserts version 1 of a new form as WIP.
func (s *SQLStore) CreateForm(ctx context.Context, in NewForm) (FormVersion, error) {
	if err := validate(in.Title, in.RawJSON, true); err != nil {
		return FormVersion{}, err
	}
	now := s.now()
	row := FormVersion{
		FormID:    in.FormID,
		Version:   1,
		Status:    StatusWIP,
		Title:     strings.TrimSpace(in.Title),
		RawJSON:   in.RawJSON,
		Thumbnail: in.Thumbnail,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insert(ctx, s.db, row); err != nil {
		return FormVersion{}, err
	}
	return row, nil
}

// EditForm applies a save to the latest version of a form: a WIP row is
// updated in place, a published row is branched into version+1 as WIP.
// Either path is a single write inside one transaction.
func (s *SQLStore) EditForm(ctx context.Context, in FormEdit) (FormVersion, error) {
	if err := validate(in.Title, in.RawJSON, false); err != nil {
		return FormVersion{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FormVersion{}, fmt.Errorf("begin edit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := s.latest(ctx, tx, in.FormID, true)
	if err != nil {
		return FormVersion{}, err
	}

	title := latest.Title
	if t := strings.TrimSpace(in.Title); t != "" {
		title = t
	}
	now := s.now()

	var result FormVersion
	switch latest.Status {
	case StatusWIP:
		res, err := tx.ExecContext(ctx, s.dialect.rebind(`
			UPDATE form_versions
			SET raw_json=$1, thumbnail=$2, title=$3, updated_at=$4
			WHERE form_id=$5 AND version=$6 AND status='WIP'
		`), string(in.RawJSON), in.Thumbnail, title, now, latest.FormID, latest.Version)
		if err != nil {
			return FormVersion{}, fmt.Errorf("update draft: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return FormVersion{}, fmt.Errorf("update draft rows: %w", err)
		}
		if n != 1 {
			return FormVersion{}, ErrConflict
		}
		result = latest
		result.RawJSON = in.RawJSON
		result.Thumbnail = in.Thumbnail
		result.Title = title
		result.UpdatedAt = now
	case StatusPublish:
		result = FormVersion{
			FormID:    latest.FormID,
			Version:   latest.Version + 1,
			Status:    StatusWIP,
			Title:     title,
			RawJSON:   in.RawJSON,
			Thumbnail: in.Thumbnail,
			CreatedBy: in.EditedBy,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.insert(ctx, tx, result); err != nil {
			return FormVersion{}, err
		}
	default:
		return FormVersion{}, fmt.Errorf("form %s version %d has unknown status %q", latest.FormID, latest.Version, latest.Status)
	}

	if err := tx.Commit(); err != nil {
		return FormVersion{}, fmt.Errorf("commit edit: %w", err)
	}
	return result, nil
}

// Publish moves the latest WIP version of a form to PUBLISH without changing
// its version number.
func (s *SQLStore) Publish(ctx context.Context, formID string, version int) (FormVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return FormVersion{}, fmt.Errorf("begin publish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	latest, err := s.latest(ctx, tx, formID, true)
	if err != nil {
		return FormVersion{}, err
	}
	if latest.Version != version {
		if _, err := s.byVersion(ctx, tx, formID, version); err != nil {
			return FormVersion{}, err
		}
		return FormVersion{}, ErrConflict
	}
	if latest.Status != StatusWIP {
		return FormVersion{}, ErrConflict
	}

	now := s.now()
	res, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE form_versions SET status='PUBLISH', updated_at=$1
		WHERE form_id=$2 AND version=$3 AND status='WIP'
	`), now, formID, version)
	if err != nil {
		return FormVersion{}, fmt.Errorf("publish: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return FormVersion{}, fmt.Errorf("publish rows: %w", err)
	} else if n != 1 {
		return FormVersion{}, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return FormVersion{}, fmt.Errorf("commit publish: %w", err)
	}
	latest.Status = StatusPublish
	latest.UpdatedAt = now
	return latest, nil
}

func (s *SQLStore) GetByVersion(ctx context.Context, formID string, version int) (FormVersion, error) {
	return s.byVersion(ctx, s.db, formID, version)
}

func (s *SQLStore) GetLatest(ctx context.Context, formID string) (FormVersion, error) {
	return s.latest(ctx, s.db, formID, false)
}

// ListByOwnerAndStatus pages through an owner's versions with the given
// status, most recently updated first.
func (s *SQLStore) ListByOwnerAndStatus(ctx context.Context, ownerID string, status Status, limit, offset int) ([]FormVersion, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+formColumns+`
		FROM form_versions
		WHERE created_by=$1 AND status=$2
		ORDER BY updated_at DESC, form_id, version DESC
		LIMIT $3 OFFSET $4
	`), ownerID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return collect(rows)
}

// SearchByTitle is the SQL fallback for title search: the latest version of
// each matching form owned by ownerID.
func (s *SQLStore) SearchByTitle(ctx context.Context, ownerID, query string, limit int) ([]FormVersion, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+formColumns+`
		FROM form_versions fv
		WHERE fv.created_by=$1
			AND LOWER(fv.title) LIKE $2 ESCAPE '\'
			AND fv.version = (SELECT MAX(version) FROM form_versions m WHERE m.form_id = fv.form_id)
		ORDER BY fv.updated_at DESC
		LIMIT $3
	`), ownerID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search forms: %w", err)
	}
	return collect(rows)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) insert(ctx context.Context, q querier, row FormVersion) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO form_versions (`+formColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`), row.FormID, row.Version, string(row.Status), row.Title, string(row.RawJSON), row.Thumbnail, row.CreatedBy, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert form version: %w", err)
	}
	return nil
}

func (s *SQLStore) latest(ctx context.Context, q querier, formID string, lock bool) (FormVersion, error) {
	query := `
		SELECT ` + formColumns + `
		FROM form_versions
		WHERE form_id=$1
		ORDER BY version DESC
		LIMIT 1`
	if lock {
		query += s.dialect.lockLatest()
	}
	item, err := scanForm(q.QueryRowContext(ctx, s.dialect.rebind(query), formID))
	if errors.Is(err, sql.ErrNoRows) {
		return FormVersion{}, ErrNotFound
	}
	if err != nil {
		return FormVersion{}, fmt.Errorf("get latest form version: %w", err)
	}
	return item, nil
}

func (s *SQLStore) byVersion(ctx context.Context, q querier, formID string, version int) (FormVersion, error) {
	item, err := scanForm(q.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT `+formColumns+`
		FROM form_versions
		WHERE form_id=$1 AND version=$2
	`), formID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return FormVersion{}, ErrNotFound
	}
	if err != nil {
		return FormVersion{}, fmt.Errorf("get form version: %w", err)
	}
	return item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanForm(row scanner) (FormVersion, error) {
	var (
		item   FormVersion
		status string
		raw    []byte
	)
	if err := row.Scan(&item.FormID, &item.Version, &status, &item.Title, &raw, &item.Thumbnail, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return FormVersion{}, err
	}
	item.Status = Status(status)
	item.RawJSON = append([]byte(nil), raw...)
	return item, nil
}

func collect(rows *sql.Rows) ([]FormVersion, error) {
	defer rows.Close()
	items := make([]FormVersion, 0)
	for rows.Next() {
		item, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan form version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form versions: %w", err)
	}
	return items, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
