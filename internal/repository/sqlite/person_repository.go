package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"persondb/internal/domain"
	"persondb/internal/repository"
)

const createPersonsTable = `
CREATE TABLE IF NOT EXISTS persons (
	id TEXT PRIMARY KEY,
	login TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	display_name TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deleted_persons (
	id TEXT PRIMARY KEY,
	deleted_at DATETIME NOT NULL
);
`

type PersonRepository struct {
	db *sql.DB
}

func NewPersonRepository(db *sql.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

var _ repository.PersonRepository = (*PersonRepository)(nil)

func (r *PersonRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPersonsTable); err != nil {
		return fmt.Errorf("create persons table: %w", err)
	}
	return nil
}

func (r *PersonRepository) Create(ctx context.Context, id uuid.UUID, person domain.Person) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	var tombstones int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM deleted_persons WHERE id = ?`, id.String()).Scan(&tombstones); err != nil {
		return fmt.Errorf("check deleted person: %w", err)
	}
	if tombstones > 0 {
		return repository.ErrIDTaken
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
INSERT INTO persons (id, login, password, display_name, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(),
		person.Login,
		person.Password,
		person.DisplayName,
		person.Metadata,
		now,
		now,
	)
	if err != nil {
		return translateWriteErr(err, "insert person")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

func (r *PersonRepository) Get(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, login, password, display_name, metadata
FROM persons
WHERE id = ?`,
		id.String(),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Person{}, fmt.Errorf("person %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Person{}, err
	}
	return entry.Person, nil
}

func (r *PersonRepository) GetByLogin(ctx context.Context, login string) (repository.Entry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, login, password, display_name, metadata
FROM persons
WHERE login = ?`,
		login,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.Entry{}, fmt.Errorf("login %q: %w", login, domain.ErrNotFound)
	}
	return entry, err
}

func (r *PersonRepository) Update(ctx context.Context, id uuid.UUID, fn repository.UpdateFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
SELECT id, login, password, display_name, metadata
FROM persons
WHERE id = ?`,
		id.String(),
	)
	current, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("person %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	next, err := fn(current.Person)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE persons
SET login = ?, password = ?, display_name = ?, metadata = ?, updated_at = ?
WHERE id = ?`,
		next.Login,
		next.Password,
		next.DisplayName,
		next.Metadata,
		time.Now().UTC(),
		id.String(),
	); err != nil {
		return translateWriteErr(err, "update person")
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// Delete removes the person and records its id as deleted in the same transaction.
func (r *PersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete person rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("person %s: %w", id, domain.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO deleted_persons (id, deleted_at)
VALUES (?, ?)`,
		id.String(),
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("record deleted person: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (r *PersonRepository) List(ctx context.Context) ([]repository.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, login, password, display_name, metadata
FROM persons
ORDER BY login`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var entries []repository.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return entries, nil
}

func (r *PersonRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return n, nil
}

func translateWriteErr(err error, op string) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique") && strings.Contains(msg, "persons.login"):
		return domain.ErrLoginTaken
	case strings.Contains(msg, "unique") && strings.Contains(msg, "persons.id"),
		strings.Contains(msg, "primary key"):
		return repository.ErrIDTaken
	}
	return fmt.Errorf("%s: %w", op, err)
}

// scanEntry returns sql.ErrNoRows unwrapped so callers can attach the lookup key.
func scanEntry(row interface {
	Scan(dest ...any) error
}) (repository.Entry, error) {
	var (
		entry repository.Entry
		rawID string
	)
	if err := row.Scan(
		&rawID,
		&entry.Person.Login,
		&entry.Person.Password,
		&entry.Person.DisplayName,
		&entry.Person.Metadata,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Entry{}, err
		}
		return repository.Entry{}, fmt.Errorf("scan person: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return repository.Entry{}, fmt.Errorf("parse person id %q: %w", rawID, err)
	}
	entry.ID = id
	return entry, nil
}
