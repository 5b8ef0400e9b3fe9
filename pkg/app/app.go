// Package app wires the vidq components into a running assistant.
//
// Components are registered as lazy providers in a samber/do container, so
// a command that only ingests never opens the model provider and a command
// that only resolves never opens the cache. Close shuts everything down in
// reverse dependency order.
package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/otherjamesbrown/vidq/config"
	"github.com/otherjamesbrown/vidq/pkg/assistant"
	"github.com/otherjamesbrown/vidq/pkg/cache"
	"github.com/otherjamesbrown/vidq/pkg/history"
	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/search"
	"github.com/otherjamesbrown/vidq/pkg/store"
)

// Options configures an App.
type Options struct {
	Config *config.CLIConfig
	Logger logging.Logger

	// Provider replaces the configured model provider.
	Provider llm.Provider

	// Store replaces the configured chunk store.
	Store store.Store

	// Registry receives the app's metrics. Nil creates a private registry.
	Registry *prometheus.Registry
}

// App owns the dependency container.
type App struct {
	injector *do.RootScope
	cfg      *config.CLIConfig
	logger   logging.Logger
	registry *prometheus.Registry
	closer   *closer
}

// New registers every provider. Nothing is opened until first use.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	a := &App{
		injector: do.New(),
		cfg:      opts.Config,
		logger:   opts.Logger,
		registry: opts.Registry,
		closer:   &closer{logger: opts.Logger},
	}

	do.ProvideValue(a.injector, a.cfg)
	do.ProvideValue(a.injector, a.logger)
	do.ProvideValue(a.injector, a.registry)
	do.ProvideValue(a.injector, a.closer)

	// Observability
	do.Provide(a.injector, ProvideMetrics)
	do.Provide(a.injector, ProvideTracer)

	// Storage layer
	if opts.Store != nil {
		do.ProvideValue(a.injector, &StoreHandle{Store: opts.Store, closer: a.closer})
	} else {
		do.Provide(a.injector, ProvideStore)
	}
	do.Provide(a.injector, ProvideSearchIndex)
	do.Provide(a.injector, ProvideCache)
	do.Provide(a.injector, ProvideHistory)
	do.Provide(a.injector, ProvideScrape)

	// Model layer
	if opts.Provider != nil {
		do.ProvideValue(a.injector, &ProviderHandle{Provider: opts.Provider, closer: a.closer})
	} else {
		do.Provide(a.injector, ProvideLLM)
	}
	do.Provide(a.injector, ProvideEngine)

	// Question pipeline
	do.Provide(a.injector, ProvideRouter)
	do.Provide(a.injector, ProvideAssistant)

	return a, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.CLIConfig {
	return a.cfg
}

// Gatherer exposes the app's metrics for /metrics.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.registry
}

// Assistant returns the question pipeline, opening its dependencies.
func (a *App) Assistant() (*assistant.Assistant, error) {
	return do.Invoke[*assistant.Assistant](a.injector)
}

// Store returns the chunk store.
func (a *App) Store() (store.Store, error) {
	h, err := do.Invoke[*StoreHandle](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Store, nil
}

// Index returns the topic index, or nil when search is disabled.
func (a *App) Index() (*search.Index, error) {
	h, err := do.Invoke[*SearchIndexHandle](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Index, nil
}

// Cache returns the analysis cache, or nil when caching is disabled.
func (a *App) Cache() (*cache.Cache, error) {
	h, err := do.Invoke[*CacheHandle](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Cache, nil
}

// ScrapeQueue returns the scrape queue, or nil when scraping is off.
func (a *App) ScrapeQueue() (scrape.Queue, error) {
	h, err := do.Invoke[*ScrapeHandle](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Queue, nil
}

// History returns the history store, or nil when history is not configured.
func (a *App) History() (*history.Store, error) {
	h, err := do.Invoke[*HistoryHandle](a.injector)
	if err != nil {
		return nil, err
	}
	return h.Store, nil
}

// Close shuts down every opened component and returns their close errors.
func (a *App) Close() error {
	_ = a.injector.Shutdown()
	return a.closer.err()
}

// closer collects errors from component shutdowns.
type closer struct {
	logger logging.Logger
	mu     sync.Mutex
	errs   []error
}

func (c *closer) add(name string, err error) error {
	if err == nil {
		c.logger.Debug("Closed component", logging.F("component", name))
		return nil
	}
	err = fmt.Errorf("closing %s: %w", name, err)
	c.logger.Warn("Close failed", logging.F("component", name), logging.Err(err))
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	return err
}

func (c *closer) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}
