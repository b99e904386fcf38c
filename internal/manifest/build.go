// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"fmt"
	"time"

	"github.com/ManuGH/lessoncast/internal/cache"
)

// Strategy names accepted by Build.
const (
	StrategyBase    = "base"
	StrategyDirect  = "direct"
	StrategySigned  = "signed"
	StrategyCatalog = "catalog"
)

// Config selects and parameterizes a resolution strategy.
type Config struct {
	Strategy  string
	BaseURL   string
	Direct    map[string]string
	SignParam string
	SignToken string
	CacheTTL  time.Duration
}

// Build assembles the resolver chain for cfg. A nil cache or a zero TTL
// disables caching.
func Build(cfg Config, lessons LessonLookup, c cache.Cache) (Resolver, error) {
	var (
		r   Resolver
		err error
	)
	switch cfg.Strategy {
	case StrategyBase, "":
		r, err = NewBaseURL(cfg.BaseURL)
	case StrategyDirect:
		if len(cfg.Direct) == 0 {
			return nil, fmt.Errorf("manifest: direct strategy needs at least one url")
		}
		r = &Direct{URLs: cfg.Direct}
	case StrategySigned:
		if cfg.SignToken == "" {
			return nil, fmt.Errorf("manifest: signed strategy needs a token")
		}
		var base *BaseURL
		base, err = NewBaseURL(cfg.BaseURL)
		if err == nil {
			r = NewSigned(base, cfg.SignParam, cfg.SignToken)
		}
	case StrategyCatalog:
		if lessons == nil {
			return nil, fmt.Errorf("manifest: catalog strategy needs a catalog")
		}
		r = &Catalog{Lessons: lessons}
	default:
		return nil, fmt.Errorf("manifest: unknown strategy %q (supported: base, direct, signed, catalog)", cfg.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if c != nil && cfg.CacheTTL > 0 {
		r = NewCached(r, c, cfg.CacheTTL)
	}
	return r, nil
}
