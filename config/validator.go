package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/unkn0wn-root/tagcache/codec"
)

// Validate reports every problem at once, joined and wrapped in
// ErrConfiguration.
func Validate(cfg *Config) error {
	var errs []error

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case BackendLocal:
		if cfg.Local.SharedGenerations && cfg.ConnectionString == "" {
			errs = append(errs, errors.New("connection_string is required when local.shared_generations is set"))
		}
		switch cfg.Local.Store {
		case "", StoreRistretto, StoreBigcache:
		default:
			errs = append(errs, fmt.Errorf("local.store must be %q or %q, got %q", StoreRistretto, StoreBigcache, cfg.Local.Store))
		}
		if cfg.Local.Store == StoreBigcache && cfg.Local.LifeWindow <= 0 {
			errs = append(errs, errors.New("local.life_window must be positive for bigcache"))
		}
	case BackendDistributed:
		if strings.TrimSpace(cfg.ConnectionString) == "" {
			errs = append(errs, errors.New("connection_string is required for the distributed backend"))
		}
	case "":
		errs = append(errs, errors.New("backend is required"))
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendLocal, BackendDistributed, cfg.Backend))
	}

	if cfg.DefaultTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("default_ttl_minutes must be positive, got %d", cfg.DefaultTTLMinutes))
	}
	if cfg.ShortTTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("short_ttl_minutes must be positive, got %d", cfg.ShortTTLMinutes))
	}

	if cfg.Codec != "" && !slices.Contains(codec.Names(), cfg.Codec) {
		errs = append(errs, fmt.Errorf("codec must be one of %s, got %q", strings.Join(codec.Names(), ", "), cfg.Codec))
	}
	if cfg.MaxValueBytes < 0 {
		errs = append(errs, fmt.Errorf("max_value_bytes must not be negative, got %d", cfg.MaxValueBytes))
	}
	switch cfg.Lock.Mode {
	case "", "auto", "atomic", "naive":
	default:
		errs = append(errs, fmt.Errorf("lock.mode must be auto, atomic or naive, got %q", cfg.Lock.Mode))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}
