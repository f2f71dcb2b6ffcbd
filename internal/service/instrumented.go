package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"persondb/internal/domain"
	"persondb/internal/repository"
	"persondb/internal/stats"
)

type instrumentedService struct {
	next  PersonService
	stats *stats.Collector
	now   func() time.Time
}

// WithStats records the count, error count and latency of every call to next.
func WithStats(next PersonService, collector *stats.Collector) PersonService {
	return &instrumentedService{next: next, stats: collector, now: time.Now}
}

func (s *instrumentedService) observe(op string, start time.Time, err error) {
	s.stats.Record(op, s.now().Sub(start), err != nil)
}

func (s *instrumentedService) Create(ctx context.Context, person domain.Person) (id uuid.UUID, err error) {
	defer func(start time.Time) { s.observe("create", start, err) }(s.now())
	return s.next.Create(ctx, person)
}

func (s *instrumentedService) Read(ctx context.Context, id uuid.UUID) (p domain.Person, err error) {
	defer func(start time.Time) { s.observe("read", start, err) }(s.now())
	return s.next.Read(ctx, id)
}

func (s *instrumentedService) Update(ctx context.Context, id uuid.UUID, patch domain.PersonPatch) (err error) {
	defer func(start time.Time) { s.observe("update", start, err) }(s.now())
	return s.next.Update(ctx, id, patch)
}

func (s *instrumentedService) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(s.now())
	return s.next.Delete(ctx, id)
}

func (s *instrumentedService) List(ctx context.Context) (entries []repository.Entry, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(s.now())
	return s.next.List(ctx)
}

// Count backs the health check and is not recorded.
func (s *instrumentedService) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

func (s *instrumentedService) Authenticate(ctx context.Context, login, password string) (id uuid.UUID, err error) {
	defer func(start time.Time) { s.observe("authenticate", start, err) }(s.now())
	return s.next.Authenticate(ctx, login, password)
}

func (s *instrumentedService) Import(ctx context.Context, entries []repository.Entry) (res ImportResult, err error) {
	defer func(start time.Time) { s.observe("import", start, err) }(s.now())
	return s.next.Import(ctx, entries)
}
