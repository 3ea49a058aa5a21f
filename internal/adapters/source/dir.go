package source

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/giveaway-engine/internal/core"
)

const processedDir = "processed"

// Dir reads .eml files from a directory. Ack moves a file into processed/.
type Dir struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]string // candidate id -> file path
}

// NewDir creates a directory source, creating the directory if needed
func NewDir(path string, logger *zap.Logger) (*Dir, error) {
	if err := os.MkdirAll(filepath.Join(path, processedDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}
	return &Dir{
		path:   path,
		logger: logger,
		files:  make(map[string]string),
	}, nil
}

// Poll implements core.EmailSource
func (d *Dir) Poll(ctx context.Context) iter.Seq2[core.Candidate, error] {
	return func(yield func(core.Candidate, error) bool) {
		entries, err := os.ReadDir(d.path)
		if err != nil {
			yield(core.Candidate{}, fmt.Errorf("failed to read inbox: %w", err))
			return
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			if ctx.Err() != nil {
				return
			}

			path := filepath.Join(d.path, name)
			raw, err := os.ReadFile(path)
			if err != nil {
				if !yield(core.Candidate{}, fmt.Errorf("read %s: %w", name, err)) {
					return
				}
				continue
			}

			c, err := parseMessage(raw, "dir", path)
			if err != nil {
				if !yield(core.Candidate{}, fmt.Errorf("%s: %w", name, err)) {
					return
				}
				continue
			}

			d.mu.Lock()
			d.files[c.ID] = path
			d.mu.Unlock()

			if !yield(c, nil) {
				return
			}
		}
	}
}

// Ack implements core.EmailSource
func (d *Dir) Ack(ctx context.Context, candidateID string) error {
	d.mu.Lock()
	path, ok := d.files[candidateID]
	delete(d.files, candidateID)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown candidate %q", candidateID)
	}

	dest := filepath.Join(d.path, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("failed to move %s: %w", path, err)
	}

	d.logger.Debug("Candidate acknowledged",
		zap.String("candidate_id", candidateID),
		zap.String("file", dest))
	return nil
}
