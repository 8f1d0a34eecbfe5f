package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gcpassist/gcpassist/engine/core"
)

// ErrNamespaceConflict reports two documents targeting one namespace. Chunk
// ids are derived from the namespace and chunk index, so the second document
// would overwrite the first.
var ErrNamespaceConflict = errors.New("namespace is shared by more than one document")

// Job names one document to ingest into one namespace.
type Job struct {
	Path      string
	Namespace string
}

// Result reports the outcome of a single Job.
type Result struct {
	Path      string
	Namespace string
	Chunks    int
	Duration  time.Duration
	Err       error
}

// Ingester is the single-document contract the Runner fans out over.
type Ingester interface {
	Ingest(ctx context.Context, path string, namespace string) (int, error)
}

// Runner ingests many documents with a bounded worker pool. A failing
// document does not stop the others.
type Runner struct {
	ingester Ingester
	workers  int
}

func NewRunner(ingester Ingester, workers int) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{ingester: ingester, workers: workers}
}

// Run returns one Result per job, in job order. Jobs whose namespace is
// shared with another document fail without being ingested.
func (r *Runner) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	conflicts := namespaceConflicts(jobs)
	g := &errgroup.Group{}
	g.SetLimit(r.workers)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			start := time.Now()
			res := Result{Path: job.Path, Namespace: job.Namespace}
			if err := conflicts[job.Namespace]; err != nil {
				res.Err = err
			} else if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Chunks, res.Err = r.ingester.Ingest(ctx, job.Path, job.Namespace)
			}
			res.Duration = time.Since(start)
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed counts results that carry an error.
func Failed(results []Result) int {
	n := 0
	for i := range results {
		if results[i].Err != nil {
			n++
		}
	}
	return n
}

// ValidateJobs returns an error when one namespace receives more than one
// document.
func ValidateJobs(jobs []Job) error {
	conflicts := namespaceConflicts(jobs)
	for i := range jobs {
		if err := conflicts[jobs[i].Namespace]; err != nil {
			return err
		}
	}
	return nil
}

func namespaceConflicts(jobs []Job) map[string]error {
	owners := make(map[string]string, len(jobs))
	conflicts := make(map[string]error)
	for i := range jobs {
		ns, path := jobs[i].Namespace, filepath.Clean(jobs[i].Path)
		owner, ok := owners[ns]
		if !ok {
			owners[ns] = path
			continue
		}
		if owner != path && conflicts[ns] == nil {
			conflicts[ns] = core.NewError(
				fmt.Errorf("%w: %q is targeted by %s and %s", ErrNamespaceConflict, ns, owner, path),
				core.ErrCodeValidation,
				map[string]any{"namespace": ns},
			)
		}
	}
	return conflicts
}
