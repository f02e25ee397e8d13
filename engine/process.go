package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
)

// ProcessConfig is the process-wide interpreter configuration applied by
// Init.
type ProcessConfig struct {
	// Logger replaces the no-op default logger. Nil keeps the current one.
	Logger *zap.Logger

	// CompilationCacheDir, when set, backs a compilation cache shared by
	// every Interpreter that does not configure its own.
	CompilationCacheDir string
}

var process struct {
	shared      *sharedCache
	cfg         ProcessConfig
	mu          sync.Mutex
	initialized bool
}

// sharedCache is the cache configured by Init. Every Interpreter using it
// holds a reference; it is closed once Shutdown has detached it and the
// last reference is released.
type sharedCache struct {
	cache    wazero.CompilationCache
	refs     int
	detached bool
}

// Init applies process-wide configuration. Calling it again with the same
// configuration is a no-op; a different configuration fails until Shutdown
// is called.
func Init(cfg ProcessConfig) error {
	process.mu.Lock()
	defer process.mu.Unlock()

	if process.initialized {
		if process.cfg == cfg {
			return nil
		}
		return errors.InvalidInput(errors.PhaseInit, "engine already initialized with a different configuration")
	}

	if cfg.CompilationCacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return errors.AllocationFailed(errors.PhaseInit,
				fmt.Sprintf("compilation cache at %s", cfg.CompilationCacheDir), err)
		}
		process.shared = &sharedCache{cache: cache}
	}
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
	}

	process.cfg = cfg
	process.initialized = true
	debugf("engine initialized (cache dir %q)", cfg.CompilationCacheDir)
	return nil
}

// Shutdown releases process-wide state acquired by Init. The shared cache
// is detached: Interpreters already using it keep it until they are closed,
// and the last of them closes it. New Interpreters no longer see it.
// Calling Shutdown without Init, or twice, is a no-op.
func Shutdown(ctx context.Context) error {
	process.mu.Lock()
	defer process.mu.Unlock()

	if !process.initialized {
		return nil
	}
	var err error
	if sc := process.shared; sc != nil {
		sc.detached = true
		if sc.refs == 0 {
			err = sc.cache.Close(ctx)
		}
		process.shared = nil
	}
	process.cfg = ProcessConfig{}
	process.initialized = false
	debugf("engine shut down")
	if err != nil {
		return errors.Wrap(errors.PhaseInit, errors.KindInternal, err, "close compilation cache")
	}
	return nil
}

// Initialized reports whether Init has been called without a matching
// Shutdown.
func Initialized() bool {
	process.mu.Lock()
	defer process.mu.Unlock()
	return process.initialized
}

// acquireSharedCache takes a reference on the cache configured by Init, or
// returns nil when there is none.
func acquireSharedCache() *sharedCache {
	process.mu.Lock()
	defer process.mu.Unlock()
	sc := process.shared
	if sc != nil {
		sc.refs++
	}
	return sc
}

// release drops a reference taken by acquireSharedCache.
func (sc *sharedCache) release(ctx context.Context) error {
	process.mu.Lock()
	defer process.mu.Unlock()
	sc.refs--
	if sc.refs == 0 && sc.detached {
		return sc.cache.Close(ctx)
	}
	return nil
}
