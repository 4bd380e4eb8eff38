package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ryosuke1832/remind/internal/model"
	"github.com/ryosuke1832/remind/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the document tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS avatars (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            is_default BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            doc JSONB NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS avatars_owner_idx ON avatars(owner_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            doc JSONB NOT NULL
        )`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// NewWithDB constructs a Postgres document store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Avatars() store.Avatars { return &avatars{db: s.db} }
func (s *pgStore) Users() store.Users     { return &users{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func now() time.Time { return time.Now().UTC() }

// --- Avatars ---
type avatars struct{ db *sql.DB }

func (a *avatars) Create(ctx context.Context, m *model.Avatar) (*model.Avatar, error) {
	out := m.Clone()
	ts := now()
	out.CreatedAt, out.UpdatedAt = ts, ts
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	res, err := a.db.ExecContext(ctx, `
        INSERT INTO avatars (id, owner_id, is_default, created_at, updated_at, doc)
        VALUES ($1,$2,$3,$4,$4,$5::jsonb)
        ON CONFLICT (id) DO NOTHING
    `, out.ID, out.OwnerID, out.IsDefault, ts, string(doc))
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
	err := a.db.QueryRowContext(ctx, `SELECT doc FROM avatars WHERE id = $1`, id).Scan(&doc)
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
        SELECT id, doc FROM avatars WHERE owner_id = $1 ORDER BY created_at, id
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
	err = tx.QueryRowContext(ctx, `SELECT doc FROM avatars WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
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
	cur.UpdatedAt = now()
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
	ts := now()
	out.UpdatedAt = ts

	var created time.Time
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM avatars WHERE id = $1 FOR UPDATE`, out.ID).Scan(&created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		out.CreatedAt = ts
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO avatars (id, owner_id, is_default, created_at, updated_at, doc)
            VALUES ($1,$2,$3,$4,$4,'{}'::jsonb)
        `, out.ID, out.OwnerID, out.IsDefault, ts); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		out.CreatedAt = created.UTC()
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
        UPDATE avatars SET owner_id = $1, is_default = $2, updated_at = $3, doc = $4::jsonb WHERE id = $5
    `, m.OwnerID, m.IsDefault, m.UpdatedAt, string(doc), m.ID)
	return err
}

func (a *avatars) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM avatars WHERE id = $1`, id)
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
	ts := now()
	res, err := a.db.ExecContext(ctx, `
        UPDATE avatars
        SET is_default = (id = $2),
            updated_at = $3,
            doc = jsonb_set(jsonb_set(doc, '{is_default}', to_jsonb(id = $2)), '{updated_at}', to_jsonb($4::text))
        WHERE owner_id = $1
          AND EXISTS (SELECT 1 FROM avatars WHERE id = $2 AND owner_id = $1)
    `, ownerID, id, ts, ts.Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Users ---
type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	ts := now()
	out.CreatedAt, out.UpdatedAt = ts, ts
	if out.ProfileImg == "" {
		out.ProfileImg = model.DefaultProfileImage
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	res, err := u.db.ExecContext(ctx, `
        INSERT INTO users (id, created_at, updated_at, doc) VALUES ($1,$2,$2,$3::jsonb)
        ON CONFLICT (id) DO NOTHING
    `, out.ID, ts, string(doc))
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
	err := u.db.QueryRowContext(ctx, `SELECT doc FROM users WHERE id = $1`, id).Scan(&doc)
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
	err = tx.QueryRowContext(ctx, `SELECT doc FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
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
	cur.UpdatedAt = now()
	raw, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET updated_at = $1, doc = $2::jsonb WHERE id = $3`,
		cur.UpdatedAt, string(raw), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cur, nil
}
