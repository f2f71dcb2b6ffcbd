package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"persondb/internal/domain"
)

// Entry pairs a stored person with its identifier.
type Entry struct {
	ID     uuid.UUID
	Person domain.Person
}

// UpdateFunc computes the replacement for the current record.
type UpdateFunc func(current domain.Person) (domain.Person, error)

// PersonRepository owns the records and the login registry. Create, Update and
// Delete are the only mutation points and keep both in lockstep. An id freed by
// Delete is never accepted by Create again.
type PersonRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, id uuid.UUID, person domain.Person) error
	Get(ctx context.Context, id uuid.UUID) (domain.Person, error)
	GetByLogin(ctx context.Context, login string) (Entry, error)
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Entry, error)
	Count(ctx context.Context) (int, error)
}

// ErrIDTaken is returned by Create when the identifier is live or was deleted.
var ErrIDTaken = errors.New("person id already in use")
