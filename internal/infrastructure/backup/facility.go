// Package backup implements whole-database snapshots: dump the tracked
// collections to a JSON file, flush them, and load them back.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/ersonp/libris/internal/domain/ports"
	"github.com/ersonp/libris/internal/infrastructure/config"
)

// dumpVersion is written into every dump and checked on load.
const dumpVersion = 1

const (
	extJSON = ".json"
	extZstd = ".zst"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

var reUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// Store is what the facility needs from the persistence layer.
type Store interface {
	ports.Transactor
	ports.CollectionStore
}

// Facility implements ports.Snapshotter on top of a collection store.
type Facility struct {
	store    Store
	cfg      config.BackupConfig
	logger   *slog.Logger
	recorder ports.Recorder

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	parsers fastjson.ParserPool
}

// NewFacility creates a snapshot facility writing under cfg.Dir.
func NewFacility(store Store, cfg config.BackupConfig, logger *slog.Logger, recorder ports.Recorder) (*Facility, error) {
	if cfg.Dir == "" {
		return nil, errors.New("backup dir is required")
	}
	if len(cfg.Collections) == 0 {
		return nil, errors.New("at least one collection is required")
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Facility{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		encoder:  enc,
		decoder:  dec,
	}, nil
}

// Close releases the compression state.
func (f *Facility) Close() error {
	f.decoder.Close()
	return f.encoder.Close()
}

// GenerateFilename returns a new, unique snapshot path for reason and
// creates its directory. Paths sort by creation time.
func (f *Facility) GenerateFilename(reason string) (string, error) {
	now := timeNow().UTC()
	dir := filepath.Join(f.cfg.Dir, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	name := fmt.Sprintf("%s__%s__%s%s",
		now.Format("2006-01-02T15-04-05.000000000"),
		sanitizeReason(reason),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		extJSON,
	)
	if f.cfg.Compression == config.CompressionZstd {
		name += extZstd
	}
	return filepath.Join(dir, name), nil
}

func sanitizeReason(reason string) string {
	s := reUnsafe.ReplaceAllString(strings.ToLower(reason), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "snapshot"
	}
	return s
}

// Create dumps the configured collections to a new file and returns its path.
func (f *Facility) Create(ctx context.Context, reason string) (string, error) {
	path, err := f.GenerateFilename(reason)
	if err != nil {
		return "", err
	}
	if err := f.Dump(ctx, f.cfg.Collections, path, f.cfg.Format); err != nil {
		return "", err
	}
	f.recorder.SnapshotTaken(reason)
	f.logger.InfoContext(ctx, "snapshot created", "path", path, "reason", reason)
	return path, nil
}

type dumpFile struct {
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	Collections []dumpCollection `json:"collections"`
}

type dumpCollection struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

// Dump writes collections, in order, to path. Paths ending in .zst are
// zstd-compressed. The file appears atomically.
func (f *Facility) Dump(ctx context.Context, collections []string, path, format string) error {
	if format != "json" {
		return fmt.Errorf("unsupported dump format %q", format)
	}

	doc := dumpFile{
		Version:     dumpVersion,
		CreatedAt:   timeNow().UTC(),
		Collections: make([]dumpCollection, 0, len(collections)),
	}
	for _, name := range collections {
		rows, err := f.store.DumpCollection(ctx, name)
		if err != nil {
			return fmt.Errorf("dumping %s: %w", name, err)
		}
		doc.Collections = append(doc.Collections, dumpCollection{Name: name, Rows: rows})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding dump: %w", err)
	}
	if strings.HasSuffix(path, extZstd) {
		data = f.encoder.EncodeAll(data, nil)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// Load inserts the rows of a dump into the store. The whole file is read
// and validated before anything is written. Columns the store does not
// know are dropped when ignoreUnknownFields is set and are corruption
// otherwise.
func (f *Facility) Load(ctx context.Context, path string, ignoreUnknownFields bool) error {
	collections, err := f.read(path)
	if err != nil {
		return err
	}
	return f.store.RunInTx(ctx, func(txCtx context.Context) error {
		return f.insert(txCtx, path, collections, ignoreUnknownFields)
	})
}

// Flush deletes every row of each collection. A collection blocked by
// foreign keys is moved to the back of the queue and retried after the
// others; after MaxFlushRetries blocked attempts the flush gives up.
func (f *Facility) Flush(ctx context.Context, collections []string) error {
	return f.store.RunInTx(ctx, func(txCtx context.Context) error {
		queue := append([]string(nil), collections...)
		failures := 0
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]

			err := f.store.DeleteCollection(txCtx, name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ports.ErrForeignKey) {
				return fmt.Errorf("flushing %s: %w", name, err)
			}

			failures++
			queue = append(queue, name)
			if failures > f.cfg.MaxFlushRetries {
				return &ports.ReferentialIntegrityError{Collections: uniqueNames(queue)}
			}
			f.logger.DebugContext(ctx, "flush deferred", "collection", name, "failures", failures)
		}
		return nil
	})
}

// Restore replaces the configured collections with the contents of a dump,
// in one transaction. The file is validated before anything is flushed.
func (f *Facility) Restore(ctx context.Context, path string) error {
	start := timeNow()
	collections, err := f.read(path)
	if err != nil {
		return err
	}

	err = f.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := f.Flush(txCtx, f.cfg.Collections); err != nil {
			return err
		}
		return f.insert(txCtx, path, collections, false)
	})
	if err != nil {
		return err
	}

	elapsed := timeNow().Sub(start)
	f.recorder.RestoreFinished(elapsed)
	f.logger.InfoContext(ctx, "snapshot restored", "path", path, "duration", elapsed)
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
