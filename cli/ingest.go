package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gcpassist/gcpassist/engine/knowledge/ingest"
	"github.com/gcpassist/gcpassist/engine/knowledge/loader"
	"github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// IngestCmd loads guideline documents into the vector index.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [flags] <path|glob>...",
		Short: "Chunk, embed and index guideline documents",
		Long: "Ingest PDF or text documents. Each namespace holds exactly one document: a single " +
			"document is written to --namespace unless the argument is given as pattern=namespace, " +
			"and several documents need --per-file to derive a namespace from each file name.",
		Example: "  gcpassist ingest --namespace gcp_guidelines docs/ich-e6-r2.pdf\n" +
			"  gcpassist ingest --per-file 'docs/**/*.pdf'\n" +
			"  gcpassist ingest docs/e6.pdf=ich_e6 docs/e8.pdf=ich_e8",
		Args: cobra.MinimumNArgs(1),
		RunE: runIngest,
	}
	cmd.Flags().String("namespace", "", "Target namespace (defaults to ingest.namespace)")
	cmd.Flags().Bool("per-file", false, "Use one namespace per document derived from its file name")
	cmd.Flags().Int("workers", 0, "Documents ingested concurrently")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	namespace, err := cmd.Flags().GetString("namespace")
	if err != nil {
		return fmt.Errorf("failed to get namespace flag: %w", err)
	}
	if strings.TrimSpace(namespace) == "" {
		namespace = cfg.Ingest.Namespace
	}
	perFile, err := cmd.Flags().GetBool("per-file")
	if err != nil {
		return fmt.Errorf("failed to get per-file flag: %w", err)
	}
	jobs, err := buildJobs(args, namespace, perFile)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no documents matched %v", args)
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release resources", "error", err)
		}
	}()
	pipeline, err := app.NewIngestPipeline()
	if err != nil {
		return err
	}
	log.Info("Starting ingestion", "documents", len(jobs), "workers", cfg.Ingest.Workers)
	results := ingest.NewRunner(pipeline, cfg.Ingest.Workers).Run(ctx, jobs)
	writeResults(cmd.OutOrStdout(), results)
	if failed := ingest.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d documents failed to ingest", failed, len(results))
	}
	return nil
}

// buildJobs expands each argument into jobs. An argument of the form
// "pattern=namespace" overrides the namespace for the files it matches. It
// fails when two documents would land in the same namespace.
func buildJobs(args []string, namespace string, perFile bool) ([]ingest.Job, error) {
	var jobs []ingest.Job
	seen := make(map[string]struct{})
	for _, arg := range args {
		pattern, ns := arg, namespace
		if i := strings.LastIndex(arg, "="); i > 0 && i < len(arg)-1 {
			pattern, ns = arg[:i], arg[i+1:]
		}
		paths, err := loader.Expand([]string{pattern})
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			docNS := ns
			if perFile && pattern == arg {
				docNS = namespaceFromPath(path)
			}
			key := path + "\x00" + docNS
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			jobs = append(jobs, ingest.Job{Path: path, Namespace: docNS})
		}
	}
	if err := ingest.ValidateJobs(jobs); err != nil {
		return nil, fmt.Errorf("%w; use --per-file or pattern=namespace to give each document its own namespace", err)
	}
	return jobs, nil
}

var nonNamespaceChars = regexp.MustCompile(`[^a-z0-9]+`)

// namespaceFromPath derives a namespace from a file name, e.g.
// "docs/ICH E6(R2).pdf" becomes "ich_e6_r2".
func namespaceFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	ns := strings.Trim(nonNamespaceChars.ReplaceAllString(strings.ToLower(base), "_"), "_")
	if ns == "" {
		return "default"
	}
	return ns
}

func writeResults(w io.Writer, results []ingest.Result) {
	for i := range results {
		r := results[i]
		if r.Err != nil {
			fmt.Fprintf(w, "FAIL  %s -> %s: %v\n", r.Path, r.Namespace, r.Err)
			continue
		}
		fmt.Fprintf(w, "OK    %s -> %s (%d chunks, %s)\n", r.Path, r.Namespace, r.Chunks, r.Duration.Round(time.Millisecond))
	}
}
