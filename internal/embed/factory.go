package embed

import (
	"strings"

	"github.com/lodestar-dev/lodestar/internal/config"
	"github.com/lodestar-dev/lodestar/internal/errors"
)

// NewFromConfig builds the configured provider variant, wrapped in the
// LRU cache.
func NewFromConfig(cfg *config.Config) (Provider, error) {
	var inner Provider

	switch strings.ToLower(cfg.Embeddings.Provider) {
	case "remote":
		if cfg.Embeddings.APIKey == "" {
			return nil, errors.ConfigError("remote provider requires an API key", nil).
				WithSuggestion("set LODESTAR_API_KEY or embeddings.api_key")
		}
		inner = NewRemoteProvider(RemoteOptions{
			Endpoint:   cfg.Embeddings.Endpoint,
			APIKey:     cfg.Embeddings.APIKey,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchDelay: cfg.Embeddings.BatchDelay,
		})
	case "local":
		inner = NewLocalProvider(cfg.ModelDir())
	case "static":
		inner = NewStaticProvider()
	default:
		return nil, errors.ConfigError("unknown embedding provider: "+cfg.Embeddings.Provider, nil)
	}

	return NewCachedProvider(inner, DefaultCacheSize), nil
}
