package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persondb/internal/domain"
	"persondb/internal/repository"
)

func setupRepo(t *testing.T) *PersonRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "persons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewPersonRepository(db)
	require.NoError(t, r.Init(context.Background()))
	return r
}

func TestCreateAndGet(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	id := uuid.New()
	p := domain.Person{Login: "abc123", Password: "Abcdefg123", DisplayName: "Al", Metadata: "m"}

	require.NoError(t, r.Create(ctx, id, p))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	entry, err := r.GetByLogin(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, p, entry.Person)
}

func TestCreate_Conflicts(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, r.Create(ctx, id, domain.Person{Login: "abc123", Password: "Abcdefg123"}))

	err := r.Create(ctx, uuid.New(), domain.Person{Login: "abc123", Password: "Zyxwvuts99"})
	assert.ErrorIs(t, err, domain.ErrLoginTaken)

	err = r.Create(ctx, id, domain.Person{Login: "fresh", Password: "Zyxwvuts99"})
	assert.ErrorIs(t, err, repository.ErrIDTaken)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGet_Missing(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	_, err := r.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.GetByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	id := uuid.New()
	other := uuid.New()
	require.NoError(t, r.Create(ctx, id, domain.Person{Login: "abc123", Password: "Abcdefg123", DisplayName: "Al"}))
	require.NoError(t, r.Create(ctx, other, domain.Person{Login: "bob", Password: "Abcdefg123"}))

	err := r.Update(ctx, id, func(p domain.Person) (domain.Person, error) {
		p.Login = "bob"
		return p, nil
	})
	assert.ErrorIs(t, err, domain.ErrLoginTaken)

	boom := errors.New("boom")
	err = r.Update(ctx, id, func(domain.Person) (domain.Person, error) { return domain.Person{}, boom })
	assert.ErrorIs(t, err, boom)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Login)

	err = r.Update(ctx, id, func(p domain.Person) (domain.Person, error) {
		p.Login = "renamed"
		p.Metadata = "vip"
		return p, nil
	})
	require.NoError(t, err)

	got, err = r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Person{Login: "renamed", Password: "Abcdefg123", DisplayName: "Al", Metadata: "vip"}, got)

	require.NoError(t, r.Create(ctx, uuid.New(), domain.Person{Login: "abc123", Password: "Abcdefg123"}))

	err = r.Update(ctx, uuid.New(), func(p domain.Person) (domain.Person, error) { return p, nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAndList(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	ids := map[string]uuid.UUID{}
	for _, login := range []string{"carol", "alice", "bob"} {
		ids[login] = uuid.New()
		require.NoError(t, r.Create(ctx, ids[login], domain.Person{Login: login, Password: "Abcdefg123"}))
	}

	require.NoError(t, r.Delete(ctx, ids["bob"]))
	assert.ErrorIs(t, r.Delete(ctx, ids["bob"]), domain.ErrNotFound)

	entries, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids["alice"], entries[0].ID)
	assert.Equal(t, ids["carol"], entries[1].ID)

	require.NoError(t, r.Create(ctx, uuid.New(), domain.Person{Login: "bob", Password: "Abcdefg123"}))
}

func TestCreate_RejectsDeletedID(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	id := uuid.New()
	p := domain.Person{Login: "abc123", Password: "Abcdefg123"}
	require.NoError(t, r.Create(ctx, id, p))
	require.NoError(t, r.Delete(ctx, id))

	err := r.Create(ctx, id, p)
	assert.ErrorIs(t, err, repository.ErrIDTaken)

	_, err = r.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, r.Create(ctx, uuid.New(), p))
}

func TestDeletedIDsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persons.db")
	id := uuid.New()
	p := domain.Person{Login: "abc123", Password: "Abcdefg123"}

	db, err := Open(path)
	require.NoError(t, err)
	r := NewPersonRepository(db)
	require.NoError(t, r.Init(ctx))
	require.NoError(t, r.Create(ctx, id, p))
	require.NoError(t, r.Delete(ctx, id))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	r = NewPersonRepository(db)
	require.NoError(t, r.Init(ctx))

	assert.ErrorIs(t, r.Create(ctx, id, p), repository.ErrIDTaken)
}
