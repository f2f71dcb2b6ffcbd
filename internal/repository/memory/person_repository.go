package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"persondb/internal/domain"
	"persondb/internal/repository"
)

// PersonRepository is a process-local store. Every write holds the lock for the
// whole operation so that the record map and the login registry never diverge.
// Deleted ids stay in deleted and are never accepted by Create again.
type PersonRepository struct {
	mu      sync.RWMutex
	persons map[uuid.UUID]domain.Person
	logins  map[string]uuid.UUID
	deleted map[uuid.UUID]struct{}
}

func NewPersonRepository() *PersonRepository {
	return &PersonRepository{
		persons: make(map[uuid.UUID]domain.Person),
		logins:  make(map[string]uuid.UUID),
		deleted: make(map[uuid.UUID]struct{}),
	}
}

var _ repository.PersonRepository = (*PersonRepository)(nil)

func (r *PersonRepository) Init(ctx context.Context) error {
	return nil
}

func (r *PersonRepository) Create(ctx context.Context, id uuid.UUID, person domain.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.persons[id]; exists {
		return repository.ErrIDTaken
	}
	if _, gone := r.deleted[id]; gone {
		return repository.ErrIDTaken
	}
	if _, taken := r.logins[person.Login]; taken {
		return domain.ErrLoginTaken
	}

	r.persons[id] = person
	r.logins[person.Login] = id
	return nil
}

func (r *PersonRepository) Get(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	person, ok := r.persons[id]
	if !ok {
		return domain.Person{}, notFound(id)
	}
	return person, nil
}

func (r *PersonRepository) Update(ctx context.Context, id uuid.UUID, fn repository.UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.persons[id]
	if !ok {
		return notFound(id)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next.Login != current.Login {
		if _, taken := r.logins[next.Login]; taken {
			return domain.ErrLoginTaken
		}
		delete(r.logins, current.Login)
		r.logins[next.Login] = id
	}
	r.persons[id] = next
	return nil
}

func (r *PersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	person, ok := r.persons[id]
	if !ok {
		return notFound(id)
	}
	delete(r.logins, person.Login)
	delete(r.persons, id)
	r.deleted[id] = struct{}{}
	return nil
}

func (r *PersonRepository) List(ctx context.Context) ([]repository.Entry, error) {
	r.mu.RLock()
	entries := make([]repository.Entry, 0, len(r.persons))
	for id, person := range r.persons {
		entries = append(entries, repository.Entry{ID: id, Person: person})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Person.Login < entries[j].Person.Login
	})
	return entries, nil
}

func (r *PersonRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.persons), nil
}

func (r *PersonRepository) GetByLogin(ctx context.Context, login string) (repository.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.logins[login]
	if !ok {
		return repository.Entry{}, fmt.Errorf("login %q: %w", login, domain.ErrNotFound)
	}
	return repository.Entry{ID: id, Person: r.persons[id]}, nil
}

func notFound(id uuid.UUID) error {
	return fmt.Errorf("person %s: %w", id, domain.ErrNotFound)
}
