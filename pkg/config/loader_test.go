package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Run("Should load defaults when no sources are given", func(t *testing.T) {
		svc := NewService()
		cfg, err := svc.Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
		assert.Equal(t, "fixed", cfg.Ingest.ChunkStrategy)
		assert.Equal(t, "similarity", cfg.Retrieval.Mode)
		assert.Equal(t, 4, cfg.Retrieval.TopK)
		assert.Equal(t, 20, cfg.Retrieval.FetchK)
		assert.Equal(t, "gcp_guidelines", cfg.Retrieval.Namespace)
		assert.Equal(t, "Unable to retrieve a response, please try again", cfg.Chat.FallbackMessage)
		assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, SourceDefault, svc.GetSource("ingest.chunk_size"))
	})

	t.Run("Should let YAML override defaults and environment override YAML", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "retrieval:\n  mode: mmr\n  top_k: 6\n  fetch_k: 30\ningest:\n  workers: 2\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Setenv("RETRIEVAL_TOP_K", "8")
		t.Setenv("LLM_TIMEOUT", "5s")

		svc := NewService()
		cfg, err := svc.Load(t.Context(), NewYAMLProvider(path))
		require.NoError(t, err)
		assert.Equal(t, "mmr", cfg.Retrieval.Mode)
		assert.Equal(t, 8, cfg.Retrieval.TopK)
		assert.Equal(t, 30, cfg.Retrieval.FetchK)
		assert.Equal(t, 2, cfg.Ingest.Workers)
		assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
		assert.Equal(t, SourceYAML, svc.GetSource("retrieval.mode"))
		assert.Equal(t, SourceEnv, svc.GetSource("retrieval.top_k"))
	})

	t.Run("Should apply CLI flags", func(t *testing.T) {
		cfg, err := NewService().Load(t.Context(), NewCLIProvider(map[string]any{
			"server.port":       8080,
			"runtime.log_level": "debug",
			"vector_db.path":    nil,
		}))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Runtime.LogLevel)
		assert.Equal(t, "./data/index.json", cfg.VectorDB.Path)
	})

	t.Run("Should let CLI flags override the environment", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "7000")
		svc := NewService()
		cfg, err := svc.Load(t.Context(), NewCLIProvider(map[string]any{"server.port": 9000}))
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, SourceCLI, svc.GetSource("server.port"))
	})

	t.Run("Should read variables from an env file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(path, []byte("INGEST_NAMESPACE=from_env_file\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("INGEST_NAMESPACE") })

		cfg, err := NewService(WithEnvFiles(path, filepath.Join(dir, "missing.env"))).Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "from_env_file", cfg.Ingest.Namespace)
	})

	t.Run("Should decode secrets as sensitive strings", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-test")
		cfg, err := NewService().Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
		assert.Equal(t, "[REDACTED]", cfg.LLM.APIKey.String())
		assert.Equal(t, "sk-test", cfg.Embedder.APIKey.Value())
	})
}

func TestLoader_Validate(t *testing.T) {
	t.Run("Should reject fetch_k smaller than top_k", func(t *testing.T) {
		t.Setenv("RETRIEVAL_TOP_K", "10")
		t.Setenv("RETRIEVAL_FETCH_K", "5")
		_, err := NewService().Load(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch_k")
	})

	t.Run("Should reject an unknown retrieval mode", func(t *testing.T) {
		t.Setenv("RETRIEVAL_MODE", "random")
		_, err := NewService().Load(t.Context())
		require.Error(t, err)
	})

	t.Run("Should reject an MMR lambda outside the unit interval", func(t *testing.T) {
		t.Setenv("RETRIEVAL_MMR_LAMBDA", "1.5")
		_, err := NewService().Load(t.Context())
		require.Error(t, err)
	})

	t.Run("Should require connection details for remote vector stores", func(t *testing.T) {
		t.Setenv("VECTOR_DB_PROVIDER", "pgvector")
		_, err := NewService().Load(t.Context())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dsn")
	})

	t.Run("Should reject overlap with the fixed chunk strategy", func(t *testing.T) {
		t.Setenv("INGEST_CHUNK_OVERLAP", "100")
		_, err := NewService().Load(t.Context())
		require.Error(t, err)
	})

	t.Run("Should reject nil configuration", func(t *testing.T) {
		assert.Error(t, NewService().Validate(nil))
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should map env tags to dotted config paths", func(t *testing.T) {
		m := GenerateEnvToConfigMap()
		assert.Equal(t, "retrieval.top_k", m["RETRIEVAL_TOP_K"])
		assert.Equal(t, "server.cors.allowed_origins", m["SERVER_CORS_ALLOWED_ORIGINS"])
		assert.Equal(t, "vector_db.api_key", m["PINECONE_API_KEY"])
		assert.Equal(t, "INGEST_CHUNK_SIZE", GetEnvVarForConfigPath("ingest.chunk_size"))
		assert.Empty(t, GetEnvVarForConfigPath("does.not.exist"))
	})
}

func TestContext(t *testing.T) {
	t.Run("Should return the manager configuration stored in context", func(t *testing.T) {
		m := NewManager(nil)
		_, err := m.Load(t.Context(), NewCLIProvider(map[string]any{"retrieval.top_k": 7}))
		require.NoError(t, err)
		ctx := ContextWithManager(t.Context(), m)
		assert.Equal(t, 7, FromContext(ctx).Retrieval.TopK)
	})

	t.Run("Should fall back to a default configuration", func(t *testing.T) {
		cfg := FromContext(t.Context())
		require.NotNil(t, cfg)
		assert.NotEmpty(t, cfg.Retrieval.Namespace)
	})
}
