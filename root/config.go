package root

import (
	"io"
	"log/slog"
	"sync"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/internal/pagemem"
	"github.com/joshuapare/rootkit/root/alloc"
)

// Config configures an Arena.
type Config struct {
	// PoolSize is the pool block size in bytes, a power of two between 4 KiB
	// and 1 MiB. Default 16 KiB.
	PoolSize int

	// Classes are the size classes for multi-word roots.
	// Default alloc.ConfigBalanced.
	Classes alloc.SizeClassConfig

	// Collector classifies values as young or old. When nil every value is
	// treated as young and minor scans visit every pool.
	Collector Collector

	// Lock is the runtime lock. Use the host runtime's own lock to make
	// root operations part of its critical section. Default: a new mutex.
	Lock sync.Locker

	// Logger receives pool and scan events at debug level. Default discards.
	Logger *slog.Logger

	// HeapPages backs pools with Go heap memory instead of OS mappings.
	HeapPages bool

	// MaxPools caps the number of mapped pools. Zero means no cap.
	MaxPools int

	// Poison fills freed cells with a recognisable pattern. Always on in
	// rootdebug builds.
	Poison bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize: format.DefaultPoolSize,
		Classes:  alloc.DefaultConfig,
	}
}

func (c Config) withDefaults() Config {
	if c.PoolSize == 0 {
		c.PoolSize = format.DefaultPoolSize
	}
	if c.Classes.Words == nil {
		c.Classes = alloc.DefaultConfig
	}
	if c.Lock == nil {
		c.Lock = &sync.Mutex{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if debugChecks {
		c.Poison = true
	}
	return c
}

func (c Config) pages() pagemem.Provider {
	var p pagemem.Provider
	if c.HeapPages {
		p = pagemem.Heap()
	} else {
		p = pagemem.OS()
	}
	if c.MaxPools > 0 {
		p = &pagemem.Limited{Provider: p, Max: c.MaxPools}
	}
	return p
}
