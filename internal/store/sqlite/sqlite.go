package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
)

// New opens the database at path, applies the schema and returns a store.
func New(path string) (store.Store, *sql.DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return NewWithDB(db), db, nil
}

// NewWithDB wires a store over an existing connection with the schema applied.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db, now: utcNow} }

func utcNow() time.Time { return time.Now().UTC() }

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sqliteStore) Avatars() store.Avatars { return &avatars{db: s.db, now: s.now} }
func (s *sqliteStore) Users() store.Users     { return &users{db: s.db, now: s.now} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- Avatars ---
type avatars struct {
	db  *sql.DB
	now func() time.Time
}

func (a *avatars) Create(ctx context.Context, m *model.Avatar) (*model.Avatar, error) {
	out := m.Clone()
	now := a.now()
	out.CreatedAt, out.UpdatedAt = now, now
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	res, err := a.db.ExecContext(ctx, `
        INSERT INTO avatars (id, owner_id, is_default, created_at, updated_at, doc)
        VALUES (?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING
    `, out.ID, out.OwnerID, out.IsDefault, now.UnixNano(), now.UnixNano(), string(doc))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrConflict
	}
	return &out, nil
}

func (a *avatars) Get(ctx context.Context, id string) (*model.Avatar, error) {
	var doc string
	err := a.db.QueryRowContext(ctx, `SELECT doc FROM avatars WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.DecodeAvatar([]byte(doc))
}

func (a *avatars) Query(ctx context.Context, ownerID string) ([]store.Document, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, doc FROM avatars WHERE owner_id = ? ORDER BY created_at, id
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []store.Document
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		out = append(out, store.Document{ID: id, Raw: []byte(doc)})
	}
	return out, rows.Err()
}

func (a *avatars) Update(ctx context.Context, id string, p model.AvatarPatch) (*model.Avatar, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM avatars WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cur, err := model.DecodeAvatar([]byte(doc))
	if err != nil {
		return nil, err
	}
	p.Apply(cur)
	cur.UpdatedAt = a.now()
	if err := writeAvatar(ctx, tx, cur); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cur, nil
}

func (a *avatars) Put(ctx context.Context, m *model.Avatar) (*model.Avatar, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	out := m.Clone()
	now := a.now()
	out.UpdatedAt = now

	var created int64
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM avatars WHERE id = ?`, out.ID).Scan(&created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		out.CreatedAt = now
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO avatars (id, owner_id, is_default, created_at, updated_at, doc)
            VALUES (?,?,?,?,?,'{}')
        `, out.ID, out.OwnerID, out.IsDefault, now.UnixNano(), now.UnixNano()); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		out.CreatedAt = time.Unix(0, created).UTC()
	}
	if err := writeAvatar(ctx, tx, &out); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeAvatar(ctx context.Context, tx *sql.Tx, m *model.Avatar) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
        UPDATE avatars SET owner_id = ?, is_default = ?, updated_at = ?, doc = ? WHERE id = ?
    `, m.OwnerID, m.IsDefault, m.UpdatedAt.UnixNano(), string(doc), m.ID)
	return err
}

func (a *avatars) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM avatars WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SetDefault rewrites is_default for every avatar of the owner in a single
// statement; it matches nothing unless the target belongs to the owner.
func (a *avatars) SetDefault(ctx context.Context, ownerID, id string) error {
	now := a.now()
	res, err := a.db.ExecContext(ctx, `
        UPDATE avatars
        SET is_default = (id = ?1),
            updated_at = ?3,
            doc = json_set(doc,
                '$.is_default', json(CASE WHEN id = ?1 THEN 'true' ELSE 'false' END),
                '$.updated_at', ?4)
        WHERE owner_id = ?2
          AND EXISTS (SELECT 1 FROM avatars WHERE id = ?1 AND owner_id = ?2)
    `, id, ownerID, now.UnixNano(), now.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Users ---
type users struct {
	db  *sql.DB
	now func() time.Time
}

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	now := u.now()
	out.CreatedAt, out.UpdatedAt = now, now
	if out.ProfileImg == "" {
		out.ProfileImg = model.DefaultProfileImage
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	res, err := u.db.ExecContext(ctx, `
        INSERT INTO users (id, created_at, updated_at, doc) VALUES (?,?,?,?)
        ON CONFLICT(id) DO NOTHING
    `, out.ID, now.UnixNano(), now.UnixNano(), string(doc))
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrConflict
	}
	return &out, nil
}

func (u *users) GetRaw(ctx context.Context, id string) ([]byte, error) {
	var doc string
	err := u.db.QueryRowContext(ctx, `SELECT doc FROM users WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (u *users) Get(ctx context.Context, id string) (*model.User, error) {
	raw, err := u.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.DecodeUser(raw)
}

func (u *users) Update(ctx context.Context, id string, p model.UserPatch) (*model.User, error) {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM users WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cur, err := model.DecodeUser([]byte(doc))
	if err != nil {
		return nil, err
	}
	p.Apply(cur)
	cur.UpdatedAt = u.now()
	raw, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET updated_at = ?, doc = ? WHERE id = ?`,
		cur.UpdatedAt.UnixNano(), string(raw), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cur, nil
}

// InsertRawAvatar stores doc verbatim. Used to seed documents that were
// written by other clients, including ones that no longer decode.
func InsertRawAvatar(ctx context.Context, db *sql.DB, id, ownerID string, createdAt time.Time, doc string) error {
	_, err := db.ExecContext(ctx, `
        INSERT INTO avatars (id, owner_id, is_default, created_at, updated_at, doc) VALUES (?,?,0,?,?,?)
    `, id, ownerID, createdAt.UnixNano(), createdAt.UnixNano(), doc)
	return err
}
