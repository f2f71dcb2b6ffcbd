package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persondb/internal/domain"
	"persondb/internal/repository/memory"
	"persondb/internal/service"
	"persondb/internal/storage"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeStorage) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return body, nil
}

func (f *fakeStorage) ListObjects(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.ObjectInfo
	for k, v := range f.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if key == k || !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(v))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStorage) DeleteObjects(_ context.Context, bucket string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.objects, bucket+"/"+k)
	}
	return nil
}

func newPersons(t *testing.T) service.PersonService {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return service.NewPersonService(memory.NewPersonRepository(), logger)
}

func newExporter(t *testing.T, persons service.PersonService, store storage.Service, retain int) *Exporter {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	e := NewExporter(Config{Bucket: "backups", KeyPrefix: "/persondb/", Retain: retain, Logger: logger}, persons, store)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return e
}

func TestExportAndRestore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()

	src := newPersons(t)
	id, err := src.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123", DisplayName: "Al", Metadata: "m"})
	require.NoError(t, err)

	key, err := newExporter(t, src, store, 0).Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persondb/persons-20260102T030406.000000000Z.json", key)

	raw, err := store.GetObject(ctx, "backups", key)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Persons, 1)
	assert.Equal(t, id, doc.Persons[0].ID)

	dst := newPersons(t)
	res, err := newExporter(t, dst, store, 0).Restore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, service.ImportResult{Imported: 1}, res)

	got, err := dst.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Person{Login: "abc123", Password: "Abcdefg123", DisplayName: "Al", Metadata: "m"}, got)
}

func TestRestore_MissingAndBadVersion(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()
	e := newExporter(t, newPersons(t), store, 0)

	_, err := e.Restore(ctx, "")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	require.NoError(t, store.PutObject(ctx, "backups", "old.json", []byte(`{"version":7,"persons":[]}`), ""))
	_, err = e.Restore(ctx, "old.json")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	require.NoError(t, store.PutObject(ctx, "backups", "junk.json", []byte(`{`), ""))
	_, err = e.Restore(ctx, "junk.json")
	assert.Error(t, err)
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()
	persons := newPersons(t)
	_, err := persons.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123"})
	require.NoError(t, err)

	e := newExporter(t, persons, store, 2)
	var keys []string
	for i := 0; i < 4; i++ {
		key, err := e.Export(ctx)
		require.NoError(t, err)
		keys = append(keys, key)
	}

	listed, err := e.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 4)
	assert.Equal(t, keys[3], listed[0].Key)

	removed, err := e.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	listed, err = e.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, keys[3], listed[0].Key)
	assert.Equal(t, keys[2], listed[1].Key)

	_, err = store.GetObject(ctx, "backups", "persondb/latest.json")
	assert.NoError(t, err)
}

func TestPrune_DisabledKeepsEverything(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()
	e := newExporter(t, newPersons(t), store, 0)
	_, err := e.Export(ctx)
	require.NoError(t, err)

	removed, err := e.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRestore_SkipsLiveRecords(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()
	persons := newPersons(t)
	_, err := persons.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123"})
	require.NoError(t, err)

	e := newExporter(t, persons, store, 0)
	_, err = e.Export(ctx)
	require.NoError(t, err)

	res, err := e.Restore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, service.ImportResult{Skipped: 1}, res)
}

func TestRestore_DoesNotReviveDeletedPersons(t *testing.T) {
	ctx := context.Background()
	store := newFakeStorage()
	persons := newPersons(t)

	id, err := persons.Create(ctx, domain.Person{Login: "abc123", Password: "Abcdefg123"})
	require.NoError(t, err)
	kept, err := persons.Create(ctx, domain.Person{Login: "bob", Password: "Zyxwvuts99"})
	require.NoError(t, err)

	e := newExporter(t, persons, store, 0)
	_, err = e.Export(ctx)
	require.NoError(t, err)

	require.NoError(t, persons.Delete(ctx, id))

	res, err := e.Restore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, service.ImportResult{Skipped: 2}, res)

	_, err = persons.Read(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = persons.Read(ctx, kept)
	assert.NoError(t, err)

	_, err = persons.Authenticate(ctx, "abc123", "Abcdefg123")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}
