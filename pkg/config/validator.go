package config

import (
	"fmt"
	"strings"
)

// validateCustom performs checks that span several fields.
func validateCustom(config *Config) error {
	if config.Retrieval.FetchK < config.Retrieval.TopK {
		return fmt.Errorf(
			"retrieval fetch_k (%d) must be greater than or equal to top_k (%d)",
			config.Retrieval.FetchK,
			config.Retrieval.TopK,
		)
	}
	if config.Ingest.ChunkOverlap >= config.Ingest.ChunkSize {
		return fmt.Errorf("ingest chunk_overlap must be smaller than chunk_size")
	}
	if config.Ingest.ChunkStrategy == "fixed" && config.Ingest.ChunkOverlap != 0 {
		return fmt.Errorf("ingest chunk_overlap is only supported by the recursive strategy")
	}
	if err := validateVectorDB(&config.VectorDB); err != nil {
		return err
	}
	return nil
}

func validateVectorDB(cfg *VectorDBConfig) error {
	switch strings.ToLower(cfg.Provider) {
	case "pgvector":
		if cfg.DSN.Value() == "" {
			return fmt.Errorf("vector_db.dsn is required for pgvector")
		}
	case "redis":
		if cfg.DSN.Value() == "" {
			return fmt.Errorf("vector_db.dsn is required for redis")
		}
	case "qdrant":
		if cfg.DSN.Value() == "" {
			return fmt.Errorf("vector_db.dsn is required for qdrant")
		}
		if cfg.Collection == "" {
			return fmt.Errorf("vector_db.collection is required for qdrant")
		}
	case "pinecone":
		if cfg.Host == "" {
			return fmt.Errorf("vector_db.host is required for pinecone")
		}
		if cfg.APIKey.Value() == "" {
			return fmt.Errorf("vector_db.api_key is required for pinecone")
		}
	case "filesystem":
		if cfg.Path == "" {
			return fmt.Errorf("vector_db.path is required for filesystem")
		}
	}
	return nil
}
