package store

import (
	"fmt"

	"github.com/lodestar-dev/lodestar/internal/errors"
)

// NewTextIndex creates the full-text backend named by backend. The
// backend appends its own extension to basePath.
func NewTextIndex(backend, basePath string) (TextIndex, error) {
	switch backend {
	case BackendSQLite, "":
		return NewFTS5Index(basePath + ".db")
	case BackendBleve:
		return NewBleveIndex(basePath + ".bleve")
	default:
		return nil, errors.ConfigError(
			fmt.Sprintf("unknown text index backend %q (want %q or %q)",
				backend, BackendSQLite, BackendBleve), nil)
	}
}
