package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"persondb/internal/domain"
	"persondb/internal/repository"
	"persondb/internal/service"
	"persondb/internal/storage"
)

const (
	formatVersion = 1
	latestName    = "latest.json"
	filePrefix    = "persons-"
	timeLayout    = "20060102T150405.000000000Z"
)

var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Document is the JSON layout of a stored snapshot.
type Document struct {
	Version   int          `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	Persons   []PersonJSON `json:"persons"`
}

type PersonJSON struct {
	ID          uuid.UUID `json:"id"`
	Login       string    `json:"login"`
	Password    string    `json:"password"`
	DisplayName string    `json:"display_name"`
	Metadata    string    `json:"metadata,omitempty"`
}

type Config struct {
	Bucket    string
	KeyPrefix string
	// Retain is how many timestamped snapshots Prune keeps. Zero keeps all.
	Retain int
	Logger *logrus.Logger
}

// Exporter writes the person store to object storage and reads it back.
type Exporter struct {
	cfg     Config
	persons service.PersonService
	store   storage.Service
	now     func() time.Time
}

func NewExporter(cfg Config, persons service.PersonService, store storage.Service) *Exporter {
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Exporter{
		cfg:     cfg,
		persons: persons,
		store:   store,
		now:     time.Now,
	}
}

func (e *Exporter) key(name string) string {
	if e.cfg.KeyPrefix == "" {
		return name
	}
	return path.Join(e.cfg.KeyPrefix, name)
}

// Export stores every live record and returns the key of the new snapshot.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	entries, err := e.persons.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list persons: %w", err)
	}

	createdAt := e.now().UTC()
	doc := Document{
		Version:   formatVersion,
		CreatedAt: createdAt,
		Persons:   make([]PersonJSON, len(entries)),
	}
	for i, entry := range entries {
		doc.Persons[i] = PersonJSON{
			ID:          entry.ID,
			Login:       entry.Person.Login,
			Password:    entry.Person.Password,
			DisplayName: entry.Person.DisplayName,
			Metadata:    entry.Person.Metadata,
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := e.key(filePrefix + createdAt.Format(timeLayout) + ".json")
	if err := e.store.PutObject(ctx, e.cfg.Bucket, key, body, "application/json"); err != nil {
		return "", err
	}
	if err := e.store.PutObject(ctx, e.cfg.Bucket, e.key(latestName), body, "application/json"); err != nil {
		return "", err
	}

	e.cfg.Logger.WithFields(logrus.Fields{"key": key, "persons": len(entries)}).Info("snapshot exported")
	return key, nil
}

// Restore imports the snapshot stored under key, or the latest one when key is empty.
func (e *Exporter) Restore(ctx context.Context, key string) (service.ImportResult, error) {
	if key == "" {
		key = e.key(latestName)
	}

	body, err := e.store.GetObject(ctx, e.cfg.Bucket, key)
	if err != nil {
		return service.ImportResult{}, err
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return service.ImportResult{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if doc.Version != formatVersion {
		return service.ImportResult{}, fmt.Errorf("%s: version %d: %w", key, doc.Version, ErrUnsupportedVersion)
	}

	entries := make([]repository.Entry, len(doc.Persons))
	for i, p := range doc.Persons {
		entries[i] = repository.Entry{
			ID: p.ID,
			Person: domain.Person{
				Login:       p.Login,
				Password:    p.Password,
				DisplayName: p.DisplayName,
				Metadata:    p.Metadata,
			},
		}
	}

	res, err := e.persons.Import(ctx, entries)
	if err != nil {
		return res, err
	}
	e.cfg.Logger.WithFields(logrus.Fields{"key": key, "imported": res.Imported, "skipped": res.Skipped}).Info("snapshot restored")
	return res, nil
}

// List returns the timestamped snapshots, newest first.
func (e *Exporter) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	objects, err := e.store.ListObjects(ctx, e.cfg.Bucket, e.key(filePrefix))
	if err != nil {
		return nil, err
	}
	// timestamped names sort chronologically
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

// Prune deletes all but the newest Retain snapshots and reports how many were removed.
func (e *Exporter) Prune(ctx context.Context) (int, error) {
	if e.cfg.Retain <= 0 {
		return 0, nil
	}
	objects, err := e.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(objects) <= e.cfg.Retain {
		return 0, nil
	}

	stale := objects[e.cfg.Retain:]
	keys := make([]string, len(stale))
	for i, obj := range stale {
		keys[i] = obj.Key
	}
	if err := e.store.DeleteObjects(ctx, e.cfg.Bucket, keys); err != nil {
		return 0, err
	}
	e.cfg.Logger.WithField("removed", len(keys)).Info("old snapshots pruned")
	return len(keys), nil
}
