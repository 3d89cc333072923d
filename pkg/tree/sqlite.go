package tree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sipeed/picobot/pkg/storage"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS resource_nodes (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id    INTEGER NOT NULL,
		name         TEXT    NOT NULL,
		mime_type    TEXT,
		size_bytes   INTEGER,
		owner_id     INTEGER NOT NULL,
		scope_id     INTEGER NOT NULL,
		created_at   INTEGER NOT NULL,
		external_ref TEXT    NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resource_nodes_children
		ON resource_nodes (scope_id, parent_id, created_at, id)`,
}

const nodeColumns = `id, parent_id, name, mime_type, size_bytes, owner_id, scope_id, created_at, external_ref`

type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	now    func() time.Time
}

// OpenSQLiteStore opens its own database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := storage.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore uses an already opened database. Close does not close db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if err := storage.Migrate(ctx, db, migrations...); err != nil {
		return nil, fmt.Errorf("tree: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (Node, error) {
	var (
		n       Node
		mime    sql.NullString
		size    sql.NullInt64
		created int64
	)
	if err := r.Scan(&n.ID, &n.ParentID, &n.Name, &mime, &size, &n.OwnerUserID, &n.ScopeID, &created, &n.ExternalRef); err != nil {
		return Node{}, err
	}
	if mime.Valid {
		n.MimeType = &mime.String
	}
	if size.Valid {
		n.SizeBytes = &size.Int64
	}
	n.CreatedAt = time.Unix(0, created)
	return n, nil
}

func getNode(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id int64) (Node, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM resource_nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("tree: get %d: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (Node, error) {
	if id == RootID {
		return Root(), nil
	}
	return getNode(ctx, s.db, id)
}

func (s *SQLiteStore) ListChildren(ctx context.Context, scopeID, dirID int64, page, pageSize int) (Page, error) {
	if pageSize <= 0 || page < 0 {
		return Page{}, errWrap(ErrValidation, "bad page request")
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resource_nodes WHERE scope_id = ? AND parent_id = ?`,
		scopeID, dirID).Scan(&total)
	if err != nil {
		return Page{}, fmt.Errorf("tree: count children: %w", err)
	}
	out := Page{Total: total, TotalPages: totalPages(total, pageSize)}
	if page*pageSize >= total {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM resource_nodes
		WHERE scope_id = ? AND parent_id = ?
		ORDER BY created_at, id
		LIMIT ? OFFSET ?`,
		scopeID, dirID, pageSize, page*pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("tree: list children: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return Page{}, fmt.Errorf("tree: list children: %w", err)
		}
		out.Items = append(out.Items, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Create(ctx context.Context, n Node) (Node, error) {
	if err := validate(&n); err != nil {
		return Node{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Node{}, fmt.Errorf("tree: create: %w", err)
	}
	defer tx.Rollback()

	parent := Root()
	if n.ParentID != RootID {
		parent, err = getNode(ctx, tx, n.ParentID)
		if errors.Is(err, ErrNotFound) {
			return Node{}, errWrap(ErrValidation, fmt.Sprintf("parent %d does not exist", n.ParentID))
		}
		if err != nil {
			return Node{}, err
		}
	}
	if err := checkParent(parent, n.ScopeID); err != nil {
		return Node{}, err
	}

	n.CreatedAt = s.now()
	var size sql.NullInt64
	if n.SizeBytes != nil {
		size = sql.NullInt64{Int64: *n.SizeBytes, Valid: true}
	}
	var mime sql.NullString
	if n.MimeType != nil {
		mime = sql.NullString{String: *n.MimeType, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO resource_nodes (parent_id, name, mime_type, size_bytes, owner_id, scope_id, created_at, external_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ParentID, n.Name, mime, size, n.OwnerUserID, n.ScopeID, n.CreatedAt.UnixNano(), n.ExternalRef)
	if err != nil {
		return Node{}, fmt.Errorf("tree: insert: %w", err)
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return Node{}, fmt.Errorf("tree: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Node{}, fmt.Errorf("tree: create: %w", err)
	}
	return clone(n), nil
}

func (s *SQLiteStore) Remove(ctx context.Context, scopeID, id int64) error {
	if id == RootID {
		return fmt.Errorf("%w: root cannot be removed", ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tree: remove: %w", err)
	}
	defer tx.Rollback()

	n, err := getNode(ctx, tx, id)
	if err != nil {
		return err
	}
	if n.ScopeID != scopeID {
		return fmt.Errorf("%w: id %d in scope %d", ErrNotFound, id, scopeID)
	}
	if n.IsDir() {
		var children int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM resource_nodes WHERE scope_id = ? AND parent_id = ?`,
			scopeID, id).Scan(&children)
		if err != nil {
			return fmt.Errorf("tree: remove: %w", err)
		}
		if children > 0 {
			return errWrap(ErrPrecondition, fmt.Sprintf("directory %d is not empty", id))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("tree: remove: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
