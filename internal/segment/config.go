package segment

import (
	"fmt"
	"strings"
	"time"
)

const (
	BackendRegionGrow = "regiongrow"
	BackendRemote     = "remote"
)

type Config struct {
	Backend   string
	Workers   int
	Timeout   time.Duration
	CacheSize int
	// DefectClass labels polygons produced from prompts.
	DefectClass string
	RemoteURL   string
	// Tolerance is the luma distance a click region may grow across.
	Tolerance float64
	// Simplify is the polygon simplification epsilon in pixels.
	Simplify float64
}

func DefaultConfig() Config {
	return Config{
		Backend:     BackendRegionGrow,
		Workers:     1,
		Timeout:     60 * time.Second,
		CacheSize:   8,
		DefectClass: "unclassified",
		Tolerance:   24,
		Simplify:    1.5,
	}
}

func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendRegionGrow:
	case BackendRemote:
		if strings.TrimSpace(c.RemoteURL) == "" {
			return fmt.Errorf("segment: remote backend requires remote_url")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("segment: workers must be >= 1, got %d", c.Workers)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("segment: timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("segment: cache_size must be >= 0")
	}
	if strings.TrimSpace(c.DefectClass) == "" {
		return fmt.Errorf("segment: defect_class must not be empty")
	}
	return nil
}

// New builds the process-wide segmenter for cfg: the backend behind the
// worker pool, behind the feature cache when CacheSize > 0.
func New(cfg Config) (Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var backend Segmenter
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendRemote:
		backend = NewRemote(cfg.RemoteURL, cfg.Timeout)
	default:
		backend = NewRegionGrow(cfg.Tolerance, cfg.Simplify)
	}
	var out Segmenter = NewShared(backend, cfg.Workers, cfg.Timeout)
	if cfg.CacheSize > 0 {
		cache, err := NewCache(out, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		out = cache
	}
	return out, nil
}
