// Package archive moves old delivered and failed notifications out of
// Postgres into zstd-compressed NDJSON files on disk, keeping the hot table
// small without losing history.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"wbpulse/internal/config"
	"wbpulse/internal/types"
)

// ArchivableSource lists and removes notifications eligible for archival.
type ArchivableSource interface {
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]types.Notification, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Archiver drains terminal notifications past the retention window into
// archive files.
type Archiver struct {
	cfg    config.ArchiveConfig
	source ArchivableSource
	logger types.Logger
	clock  types.Clock
}

// NewArchiver creates the archiver.
func NewArchiver(cfg config.ArchiveConfig, source ArchivableSource, logger types.Logger) *Archiver {
	if logger == nil {
		logger = types.NewLogger(nil)
	}
	return &Archiver{cfg: cfg, source: source, logger: logger, clock: types.RealClock{}}
}

// SetClock overrides the clock (tests).
func (a *Archiver) SetClock(c types.Clock) { a.clock = c }

// Run archives batches until no eligible notification remains. Each batch is
// written and fsynced before the rows are deleted, so a crash can duplicate
// archived rows but never lose them.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := a.clock.Now().Add(-a.cfg.Retention)
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := a.source.ListArchivable(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("archive: list: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		path, err := a.writeBatch(batch)
		if err != nil {
			return total, err
		}

		ids := make([]string, len(batch))
		for i, n := range batch {
			ids[i] = n.ID
		}
		deleted, err := a.source.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("archive: delete: %w", err)
		}
		total += int(deleted)

		a.logger.Info("notification batch archived",
			"file", path, "count", len(batch), "deleted", deleted)

		if len(batch) < a.cfg.BatchSize {
			return total, nil
		}
	}
}

// writeBatch writes one batch as zstd-compressed NDJSON. The file name
// carries the write timestamp so repeated runs never collide.
func (a *Archiver) writeBatch(batch []types.Notification) (string, error) {
	if err := os.MkdirAll(a.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir: %w", err)
	}

	name := fmt.Sprintf("notifications-%s.ndjson.zst", a.clock.Now().Format("20060102-150405.000000000"))
	path := filepath.Join(a.cfg.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", path, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("archive: zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, n := range batch {
		if err := enc.Encode(n); err != nil {
			zw.Close()
			return "", fmt.Errorf("archive: encode %s: %w", n.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("archive: flush %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("archive: sync %s: %w", path, err)
	}
	return path, nil
}

// Read loads an archive file back into memory. Used by operational tooling
// and tests.
func Read(path string) ([]types.Notification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("archive: zstd reader: %w", err)
	}
	defer zr.Close()

	var out []types.Notification
	dec := json.NewDecoder(zr)
	for dec.More() {
		var n types.Notification
		if err := dec.Decode(&n); err != nil {
			return nil, fmt.Errorf("archive: decode %s: %w", path, err)
		}
		out = append(out, n)
	}
	return out, nil
}
