// Package database loads the on-disk fragment tree into one in-memory
// [entity.Database].
//
// Fragment files are parsed concurrently but merged in sorted path order, so
// the result and every error message are deterministic.
package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/observe"
)

// Options configures [Load].
type Options struct {
	// Root is the database directory. Required.
	Root string

	// Extra is an optional fragment file or directory whose entities
	// override same-named entities of the main tree.
	Extra string

	// MapSize, when positive, sets the grid bounds to ±MapSize.
	MapSize int

	// Concurrency bounds parallel parsing. Zero means GOMAXPROCS.
	Concurrency int

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// DuplicateError reports a classname declared by two fragment files.
type DuplicateError struct {
	Classname string
	First     string
	Second    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("database: entity %q defined in both %s and %s", e.Classname, e.First, e.Second)
}

// Unwrap lets errors.Is match [entity.ErrDuplicateID].
func (e *DuplicateError) Unwrap() error { return entity.ErrDuplicateID }

// FragmentPath returns the absolute on-disk location of e's fragment file
// below root.
func FragmentPath(root string, e *entity.Entity) string {
	return filepath.Join(root, filepath.FromSlash(entity.StoragePath(e)))
}

// Load reads every fragment file below opts.Root, then applies opts.Extra.
func Load(ctx context.Context, opts Options) (*entity.Database, error) {
	if opts.Root == "" {
		return nil, errors.New("database: load: root must not be empty")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	met := opts.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	ctx, span := observe.StartSpan(ctx, "database.Load")
	defer span.End()
	defer met.Time(ctx, "load")()

	db := entity.NewDatabase()
	if opts.MapSize > 0 {
		db.MapSizeMin, db.MapSizeMax = -opts.MapSize, opts.MapSize
	}

	files, err := listFragments(opts.Root)
	if err != nil {
		return nil, err
	}
	parsed, err := parseAll(ctx, files, opts.Concurrency)
	if err != nil {
		return nil, err
	}
	met.RecordFragments(ctx, "main", len(files))

	origin := make(map[string]string)
	for i, ents := range parsed {
		for _, e := range ents {
			key := strings.ToLower(e.Classname)
			if prev, dup := origin[key]; dup {
				return nil, &DuplicateError{Classname: e.Classname, First: prev, Second: files[i]}
			}
			origin[key] = files[i]
			if err := db.Add(e); err != nil {
				return nil, fmt.Errorf("database: load %s: %w", files[i], err)
			}
		}
	}

	if opts.Extra != "" {
		if err := applyExtra(ctx, db, opts, log, met); err != nil {
			return nil, err
		}
	}

	observe.Logger(ctx, log).Debug("database loaded",
		"root", opts.Root,
		"files", len(files),
		"entities", db.Len(),
	)
	return db, nil
}

// applyExtra parses the override tree and replaces matching entities.
func applyExtra(ctx context.Context, db *entity.Database, opts Options, log *slog.Logger, met *observe.Metrics) error {
	info, err := os.Stat(opts.Extra)
	if err != nil {
		return fmt.Errorf("database: extra: %w", err)
	}
	files := []string{opts.Extra}
	if info.IsDir() {
		if files, err = listFragments(opts.Extra); err != nil {
			return err
		}
	}
	parsed, err := parseAll(ctx, files, opts.Concurrency)
	if err != nil {
		return err
	}
	met.RecordFragments(ctx, "extra", len(files))

	seen := make(map[string]string)
	for i, ents := range parsed {
		for _, e := range ents {
			key := strings.ToLower(e.Classname)
			if prev, dup := seen[key]; dup {
				return &DuplicateError{Classname: e.Classname, First: prev, Second: files[i]}
			}
			seen[key] = files[i]
			if db.Has(e.Classname) {
				log.Debug("extra database overrides entity", "classname", e.Classname, "file", files[i])
			}
			db.Put(e)
		}
	}
	return nil
}

// listFragments returns every fragment file below root in sorted order.
func listFragments(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), entity.FragmentExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("database: walk %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// parseAll parses files with at most limit workers. Results are indexed like
// files.
func parseAll(ctx context.Context, files []string, limit int) ([][]*entity.Entity, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	out := make([][]*entity.Entity, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ents, err := entity.LoadFragmentFile(path)
			if err != nil {
				return err
			}
			out[i] = ents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return out, nil
}
