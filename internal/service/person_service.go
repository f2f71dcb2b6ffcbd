package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"persondb/internal/domain"
	"persondb/internal/repository"
)

// ErrInvalidCredentials indicates that provided login credentials are incorrect.
var ErrInvalidCredentials = errors.New("invalid credentials")

// maxIDAttempts bounds the re-rolls when a freshly minted id is already live.
const maxIDAttempts = 3

// PersonService describes the record lifecycle.
type PersonService interface {
	Create(ctx context.Context, person domain.Person) (uuid.UUID, error)
	Read(ctx context.Context, id uuid.UUID) (domain.Person, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.PersonPatch) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]repository.Entry, error)
	Count(ctx context.Context) (int, error)
	Authenticate(ctx context.Context, login, password string) (uuid.UUID, error)
	Import(ctx context.Context, entries []repository.Entry) (ImportResult, error)
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported int
	Skipped  int
}

type personService struct {
	persons repository.PersonRepository
	logger  *logrus.Logger
	newID   func() uuid.UUID
}

func NewPersonService(persons repository.PersonRepository, logger *logrus.Logger) PersonService {
	if logger == nil {
		logger = logrus.New()
	}
	return &personService{
		persons: persons,
		logger:  logger,
		newID:   uuid.New,
	}
}

func (s *personService) Create(ctx context.Context, person domain.Person) (uuid.UUID, error) {
	if err := person.Validate(); err != nil {
		s.logger.WithError(err).Debug("create rejected")
		return uuid.Nil, err
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		err := s.persons.Create(ctx, id, person)
		if errors.Is(err, repository.ErrIDTaken) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				s.logger.WithError(err).WithField("login", person.Login).Debug("create rejected")
			}
			return uuid.Nil, err
		}
		s.logger.WithFields(logrus.Fields{"id": id, "login": person.Login}).Info("person created")
		return id, nil
	}
	return uuid.Nil, fmt.Errorf("mint person id: %w", repository.ErrIDTaken)
}

func (s *personService) Read(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	return s.persons.Get(ctx, id)
}

func (s *personService) Update(ctx context.Context, id uuid.UUID, patch domain.PersonPatch) error {
	err := s.persons.Update(ctx, id, func(current domain.Person) (domain.Person, error) {
		next := patch.Apply(current)
		if next.Login != current.Login {
			if err := domain.ValidateLogin(next.Login); err != nil {
				return domain.Person{}, err
			}
		}
		if err := domain.ValidatePassword(next.Password); err != nil {
			return domain.Person{}, err
		}
		return next, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.logger.WithError(err).WithField("id", id).Debug("update rejected")
		}
		return err
	}
	s.logger.WithField("id", id).Info("person updated")
	return nil
}

func (s *personService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.persons.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("id", id).Info("person deleted")
	return nil
}

func (s *personService) List(ctx context.Context) ([]repository.Entry, error) {
	return s.persons.List(ctx)
}

func (s *personService) Count(ctx context.Context) (int, error) {
	return s.persons.Count(ctx)
}

func (s *personService) Authenticate(ctx context.Context, login, password string) (uuid.UUID, error) {
	if login == "" || password == "" {
		return uuid.Nil, ErrInvalidCredentials
	}

	entry, err := s.persons.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, ErrInvalidCredentials
		}
		return uuid.Nil, err
	}

	if subtle.ConstantTimeCompare([]byte(entry.Person.Password), []byte(password)) != 1 {
		return uuid.Nil, ErrInvalidCredentials
	}
	return entry.ID, nil
}

// Import inserts entries under their own ids. Entries that break policy, reuse
// a live or deleted id, or collide with a live login are skipped.
func (s *personService) Import(ctx context.Context, entries []repository.Entry) (ImportResult, error) {
	var res ImportResult
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			res.Skipped++
			continue
		}
		if err := entry.Person.Validate(); err != nil {
			s.logger.WithError(err).WithField("id", entry.ID).Warn("import skipped invalid person")
			res.Skipped++
			continue
		}
		err := s.persons.Create(ctx, entry.ID, entry.Person)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, repository.ErrIDTaken), errors.Is(err, domain.ErrLoginTaken):
			s.logger.WithField("id", entry.ID).Warn("import skipped conflicting person")
			res.Skipped++
		default:
			return res, fmt.Errorf("import person %s: %w", entry.ID, err)
		}
	}
	s.logger.WithFields(logrus.Fields{"imported": res.Imported, "skipped": res.Skipped}).Info("import finished")
	return res, nil
}
