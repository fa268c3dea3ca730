// Package timeouts holds the context deadlines used around database and
// network calls made while serving a request.
//
// Values start at the defaults below and may be overridden once at startup
// with Configure (see bootstrap.ValidateConfig, fed from the timeout_* config keys).
//
//   - Ping: health probes
//   - Short: single-document reads, the membership write of a join
//   - Medium: message page reads with author enrichment, message inserts
//   - Long: group listings and index reconciliation
package timeouts

import (
	"sync"
	"time"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

var (
	mu     sync.RWMutex
	ping   = DefaultPing
	short  = DefaultShort
	medium = DefaultMedium
	long   = DefaultLong
)

func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

func Long() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return long
}

// Config holds timeout overrides. Zero fields keep the current value.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// Configure applies the non-zero fields of cfg.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Long > 0 {
		long = cfg.Long
	}
}

// Reset restores the defaults. Tests use it to undo Configure.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping, short, medium, long = DefaultPing, DefaultShort, DefaultMedium, DefaultLong
}

// Current returns the values in effect, for startup logging.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Medium: medium, Long: long}
}
