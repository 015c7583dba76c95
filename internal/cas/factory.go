package cas

import (
	"fmt"

	"bumd-go/internal/bumd"
	"bumd-go/internal/config"
)

// NewContentStoreFromConfig creates a ContentStore implementation based on the repository config type.
func NewContentStoreFromConfig(cfg config.RepositoryConfig) (bumd.ContentStore, error) {
	alg, err := ParseAlgorithm(cfg.Hash)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryStore(alg), nil
	case "", "filesystem":
		if cfg.Path == "" {
			return nil, fmt.Errorf("filesystem repository requires path to be set")
		}
		s, err := NewFileSystemStore(cfg.Path, alg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown repository type: %s", cfg.Type)
	}
}
