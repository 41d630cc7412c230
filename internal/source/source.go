// Package source fetches raw indicator batches from upstream feeds: local
// CSV, JSON, and XLSX files, and rate-limited HTTP endpoints. Adapters
// return unvalidated inputs; validation and storage belong to ingest.
package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
)

// Window bounds a fetch to a reporting interval. A nil bound is open.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Adapter is one upstream feed.
type Adapter interface {
	Name() string
	Jurisdiction() string
	Fetch(ctx context.Context, w Window) ([]model.ObservationInput, error)
}

// NewFromConfig builds the adapter described by one source config block.
func NewFromConfig(cfg config.SourceConfig) (Adapter, error) {
	switch cfg.Type {
	case "file":
		if cfg.Path == "" {
			return nil, eris.Errorf("source %s: file source needs a path", cfg.Name)
		}
		return NewFile(cfg.Name, cfg.Jurisdiction, cfg.Path, cfg.Format)
	case "http":
		if cfg.URL == "" {
			return nil, eris.Errorf("source %s: http source needs a url", cfg.Name)
		}
		return NewHTTP(cfg)
	}
	return nil, eris.Errorf("source %s: unknown type %q", cfg.Name, cfg.Type)
}
