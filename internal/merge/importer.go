package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/entunify/internal/database"
	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/observe"
	"github.com/MrWong99/entunify/pkg/tags"
)

// MissingClassnameError reports a fragment file that exists at the path
// computed for a classname but does not declare it.
type MissingClassnameError struct {
	Classname string
	Path      string
}

func (e *MissingClassnameError) Error() string {
	return fmt.Sprintf("merge: %s exists but does not define %q", e.Path, e.Classname)
}

// Result counts the outcome of one [Importer.Import] call.
type Result struct {
	Created int
	Merged  int
	Failed  int
}

// Importer merges engine-specific fragment files into the database tree
// rooted at Root.
type Importer struct {
	// Root is the database directory.
	Root string

	// Vocab validates the engine name. Defaults to [tags.Default].
	Vocab *tags.Vocabulary

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Import merges every entity of the fragment files at paths into the
// database as engine. Source parse errors abort the import. A classname
// whose target file exists without it is skipped; every such failure is
// joined into the returned error while the remaining classnames are still
// written. Files already written are not rolled back.
func (im *Importer) Import(ctx context.Context, engine string, paths []string) (Result, error) {
	var res Result
	vocab := im.Vocab
	if vocab == nil {
		vocab = tags.Default()
	}
	met := im.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}

	release, ok := vocab.Release(engine)
	if !ok {
		names := make([]string, 0, len(vocab.Releases()))
		for _, r := range vocab.Releases() {
			names = append(names, r.Name)
		}
		return res, fmt.Errorf("merge: unknown release %q, expected one of: %s", engine, strings.Join(names, ", "))
	}

	ctx, span := observe.StartSpan(ctx, "merge.Import")
	defer span.End()
	defer met.Time(ctx, "import")()
	log := observe.Logger(ctx, im.Logger).With("engine", release)

	var errs []error
	for _, path := range paths {
		ents, err := entity.LoadFragmentFile(path)
		if err != nil {
			return res, fmt.Errorf("merge: %w", err)
		}
		for _, e := range ents {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			outcome, err := im.importOne(ctx, log, met, release, e)
			met.RecordImport(ctx, release, outcome)
			switch outcome {
			case observe.OutcomeCreated:
				res.Created++
			case observe.OutcomeMerged:
				res.Merged++
			default:
				res.Failed++
				errs = append(errs, err)
			}
		}
	}
	log.Info("import finished", "created", res.Created, "merged", res.Merged, "failed", res.Failed)
	return res, errors.Join(errs...)
}

// importOne writes one entity and reports the outcome. err is non-nil only
// for [observe.OutcomeFailed].
func (im *Importer) importOne(ctx context.Context, log *slog.Logger, met *observe.Metrics, engine string, e *entity.Entity) (string, error) {
	dest := database.FragmentPath(im.Root, e)
	log = log.With("classname", e.Classname, "path", dest)

	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		created := e.Clone()
		entity.NormalizeAppliesTo(created).Add(engine)
		if err := entity.WriteFragmentFile(dest, []*entity.Entity{created}); err != nil {
			return observe.OutcomeFailed, fmt.Errorf("merge: %w", err)
		}
		log.Info("new entity")
		return observe.OutcomeCreated, nil
	}

	existing, err := entity.LoadFragmentFile(dest)
	if err != nil {
		return observe.OutcomeFailed, fmt.Errorf("merge: %w", err)
	}
	idx := -1
	for i, old := range existing {
		if strings.EqualFold(old.Classname, e.Classname) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return observe.OutcomeFailed, &MissingClassnameError{Classname: e.Classname, Path: dest}
	}

	merged, ch := MergeEntity(existing[idx], e, engine)
	for _, c := range ch.Collisions {
		log.Warn("alternatives collided on one tag set", "key", c)
	}
	met.RecordNegated(ctx, engine, ch.Negated)
	existing[idx] = merged

	if err := entity.WriteFragmentFile(dest, existing); err != nil {
		return observe.OutcomeFailed, fmt.Errorf("merge: %w", err)
	}
	log.Info("merged entity", "widened", ch.Widened, "added", ch.Added, "negated", ch.Negated)
	return observe.OutcomeMerged, nil
}
