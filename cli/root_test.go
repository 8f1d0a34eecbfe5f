package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/knowledge/ingest"
	"github.com/gcpassist/gcpassist/engine/rag"
	"github.com/gcpassist/gcpassist/pkg/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// embeddingServer mimics the OpenAI embeddings endpoint with two dimensional
// vectors derived from the input length.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)%7) + 1, 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embedding",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, dir, embeddingURL string) string {
	t.Helper()
	return writeFile(t, dir, "gcpassist.yaml", `
runtime:
  log_level: disabled
llm:
  provider: mock
  model: echo
embedder:
  provider: openai
  model: test-embedding
  api_key: test-key
  base_url: `+embeddingURL+`
  dimension: 2
  cache_size: 0
vector_db:
  provider: filesystem
  path: `+filepath.Join(dir, "index.json")+`
retrieval:
  self_query: false
ingest:
  chunk_size: 40
  retry_attempts: 0
monitoring:
  enabled: false
`)
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := RootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestSetupGlobalConfig(t *testing.T) {
	t.Run("Should load YAML and let flags override it", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeFile(t, dir, "gcpassist.yaml", "retrieval:\n  mode: mmr\nruntime:\n  log_level: warn\n")
		cmd := ServeCmd()
		RootCmd().AddCommand(cmd)
		require.NoError(t, cmd.ParseFlags([]string{
			"--config", cfgPath,
			"--env-file", "",
			"--log-level", "disabled",
			"--port", "8088",
		}))
		require.NoError(t, SetupGlobalConfig(cmd))
		cfg := config.FromContext(cmd.Context())
		assert.Equal(t, "mmr", cfg.Retrieval.Mode)
		assert.Equal(t, "disabled", cfg.Runtime.LogLevel)
		assert.Equal(t, 8088, cfg.Server.Port)
	})

	t.Run("Should fail on invalid configuration", func(t *testing.T) {
		dir := t.TempDir()
		cfgPath := writeFile(t, dir, "gcpassist.yaml", "retrieval:\n  mode: random\n")
		_, err := runRoot(t, "--config", cfgPath, "--env-file", "", "ask", "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation")
	})
}

func TestBuildJobs(t *testing.T) {
	dir := t.TempDir()
	e6 := writeFile(t, dir, "docs/ICH E6(R2).txt", "sponsor")
	e8 := writeFile(t, dir, "docs/e8.txt", "design")

	t.Run("Should put a single document into the default namespace", func(t *testing.T) {
		jobs, err := buildJobs([]string{e8}, "gcp_guidelines", false)
		require.NoError(t, err)
		assert.Equal(t, []ingest.Job{{Path: e8, Namespace: "gcp_guidelines"}}, jobs)
	})

	t.Run("Should reject a glob that sends several documents to one namespace", func(t *testing.T) {
		_, err := buildJobs([]string{filepath.Join(dir, "docs", "*.txt")}, "gcp_guidelines", false)
		require.ErrorIs(t, err, ingest.ErrNamespaceConflict)
		assert.Contains(t, err.Error(), "--per-file")
		assert.Contains(t, err.Error(), "pattern=namespace")

		_, err = buildJobs([]string{e6 + "=gcp", e8 + "=gcp"}, "gcp_guidelines", false)
		require.ErrorIs(t, err, ingest.ErrNamespaceConflict)
	})

	t.Run("Should expand globs into one namespace per file", func(t *testing.T) {
		jobs, err := buildJobs([]string{filepath.Join(dir, "docs", "*.txt")}, "gcp_guidelines", true)
		require.NoError(t, err)
		assert.Equal(t, []ingest.Job{
			{Path: e6, Namespace: "ich_e6_r2"},
			{Path: e8, Namespace: "e8"},
		}, jobs)
	})

	t.Run("Should reject per file names that collide across directories", func(t *testing.T) {
		twin := writeFile(t, dir, "archive/e8.txt", "older design")
		_, err := buildJobs([]string{e8, twin}, "gcp_guidelines", true)
		require.ErrorIs(t, err, ingest.ErrNamespaceConflict)
	})

	t.Run("Should honor explicit namespace pairs and per file names", func(t *testing.T) {
		jobs, err := buildJobs([]string{e8 + "=ich_e8", e6}, "gcp_guidelines", true)
		require.NoError(t, err)
		assert.Equal(t, []ingest.Job{
			{Path: e8, Namespace: "ich_e8"},
			{Path: e6, Namespace: "ich_e6_r2"},
		}, jobs)
	})

	t.Run("Should derive a fallback namespace for odd names", func(t *testing.T) {
		assert.Equal(t, "default", namespaceFromPath("docs/---.pdf"))
	})
}

func TestWriters(t *testing.T) {
	t.Run("Should print answers with their sources", func(t *testing.T) {
		page := 5
		var out bytes.Buffer
		require.NoError(t, writeAnswer(&out, &rag.Response{
			Content:   "Consent is required [ICH-GCP, p. 5]",
			Citations: []rag.Citation{{Source: "ICH-GCP", Page: &page}, {Source: "Declaration of Helsinki"}},
		}, false))
		assert.Equal(t,
			"Consent is required [ICH-GCP, p. 5]\n\nSources:\n  - ICH-GCP, p. 5\n  - Declaration of Helsinki\n",
			out.String(),
		)
	})

	t.Run("Should print per document ingestion outcomes", func(t *testing.T) {
		var out bytes.Buffer
		writeResults(&out, []ingest.Result{
			{Path: "a.pdf", Namespace: "gcp", Chunks: 3, Duration: 1500 * time.Microsecond},
			{Path: "b.pdf", Namespace: "gcp", Err: errors.New("boom")},
		})
		assert.Equal(t, "OK    a.pdf -> gcp (3 chunks, 2ms)\nFAIL  b.pdf -> gcp: boom\n", out.String())
	})
}

func TestCommands(t *testing.T) {
	t.Run("Should ingest documents and answer from the index", func(t *testing.T) {
		dir := t.TempDir()
		srv := embeddingServer(t)
		cfgPath := writeTestConfig(t, dir, srv.URL)
		doc := writeFile(t, dir, "ich-gcp.txt", strings.Repeat("Investigators must obtain informed consent. ", 4))

		out, err := runRoot(t, "--config", cfgPath, "--env-file", "", "ingest", "--namespace", "gcp_guidelines", doc)
		require.NoError(t, err)
		assert.Contains(t, out, "OK    "+doc+" -> gcp_guidelines")
		_, err = os.Stat(filepath.Join(dir, "index.json"))
		require.NoError(t, err)

		out, err = runRoot(t, "--config", cfgPath, "--env-file", "", "ask", "--json", "What", "is", "consent?")
		require.NoError(t, err)
		var resp rag.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, rag.RoleAssistant, resp.Role)
		assert.NotEmpty(t, resp.Content)
		assert.NotEqual(t, rag.DefaultFallbackMessage, resp.Content)
	})

	t.Run("Should exit with an error when a document fails", func(t *testing.T) {
		dir := t.TempDir()
		srv := embeddingServer(t)
		cfgPath := writeTestConfig(t, dir, srv.URL)
		good := writeFile(t, dir, "good.txt", "Monitoring visits verify source data.")
		missing := filepath.Join(dir, "missing.txt")

		out, err := runRoot(t, "--config", cfgPath, "--env-file", "", "ingest", "--per-file", good, missing)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 documents failed")
		assert.Contains(t, out, "OK    "+good+" -> good")
		assert.Contains(t, out, "FAIL  "+missing+" -> missing")
	})

	t.Run("Should refuse to ingest several documents into one namespace", func(t *testing.T) {
		dir := t.TempDir()
		srv := embeddingServer(t)
		cfgPath := writeTestConfig(t, dir, srv.URL)
		first := writeFile(t, dir, "e6.txt", "Sponsors oversee trials.")
		second := writeFile(t, dir, "e8.txt", "Trial design principles.")

		out, err := runRoot(t, "--config", cfgPath, "--env-file", "", "ingest", "--namespace", "gcp_guidelines", first, second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--per-file")
		assert.NotContains(t, out, "OK    ")
	})
}
