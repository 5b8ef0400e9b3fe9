package app

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/otherjamesbrown/vidq/config"
	"github.com/otherjamesbrown/vidq/pkg/analysis"
	"github.com/otherjamesbrown/vidq/pkg/assistant"
	"github.com/otherjamesbrown/vidq/pkg/cache"
	"github.com/otherjamesbrown/vidq/pkg/db"
	"github.com/otherjamesbrown/vidq/pkg/history"
	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/observability"
	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/search"
	"github.com/otherjamesbrown/vidq/pkg/store"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

const (
	openTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// StoreHandle wraps the chunk store with shutdown capability.
type StoreHandle struct {
	store.Store
	closer *closer
}

// Shutdown implements do.ShutdownerWithError.
func (h *StoreHandle) Shutdown() error {
	return h.closer.add("store", h.Store.Close())
}

// ProvideStore opens the configured chunk store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	s, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if pg, ok := s.(*store.Postgres); ok {
		reg := do.MustInvoke[*prometheus.Registry](i)
		if _, err := db.RegisterPoolStats(reg, pg.Pool(), "vidq", "chunks"); err != nil {
			log.Warn("Pool metrics not registered", logging.Err(err))
		}
	}
	log.Debug("Store opened", logging.F("backend", cfg.Store.Backend))
	return &StoreHandle{Store: s, closer: do.MustInvoke[*closer](i)}, nil
}

// SearchIndexHandle wraps the topic index. Index is nil when search is
// disabled.
type SearchIndexHandle struct {
	Index  *search.Index
	closer *closer
}

// Shutdown implements do.ShutdownerWithError.
func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	return h.closer.add("search index", h.Index.Close())
}

// ProvideSearchIndex opens the Bleve topic index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	h := &SearchIndexHandle{closer: do.MustInvoke[*closer](i)}
	if !cfg.Search.Enabled {
		return h, nil
	}

	index, err := search.Open(search.Options{DataPath: cfg.Search.IndexPath, Logger: log})
	if err != nil {
		return nil, err
	}
	docCount, _ := index.DocumentCount()
	log.Debug("Search index opened", logging.F("documents", docCount))

	h.Index = index
	return h, nil
}

// CacheHandle wraps the analysis cache. Cache is nil when caching is
// disabled.
type CacheHandle struct {
	Cache  *cache.Cache
	closer *closer
}

// Shutdown implements do.ShutdownerWithError.
func (h *CacheHandle) Shutdown() error {
	if h.Cache == nil {
		return nil
	}
	return h.closer.add("cache", h.Cache.Close())
}

// ProvideCache opens the Badger analysis cache.
func ProvideCache(i do.Injector) (*CacheHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	h := &CacheHandle{closer: do.MustInvoke[*closer](i)}
	if !cfg.Cache.Enabled {
		return h, nil
	}

	c, err := cache.Open(cache.Options{Path: cfg.Cache.Path, TTL: cfg.Cache.TTL, Logger: log})
	if err != nil {
		return nil, err
	}
	h.Cache = c
	return h, nil
}

// HistoryHandle wraps the history store and its async writer. Both are nil
// when history is not configured.
type HistoryHandle struct {
	Store  *history.Store
	Async  *history.Async
	closer *closer
	log    logging.Logger
}

// Shutdown flushes pending entries, then closes the connection.
func (h *HistoryHandle) Shutdown() error {
	if h.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Async.Close(ctx); err != nil {
		h.closer.add("history writer", err)
	}
	if n := h.Async.Dropped(); n > 0 {
		h.log.Warn("Query history entries dropped", logging.F("count", n))
	}
	return h.closer.add("history", h.Store.Close())
}

// ProvideHistory connects the query history store.
func ProvideHistory(i do.Injector) (*HistoryHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	h := &HistoryHandle{closer: do.MustInvoke[*closer](i), log: log}
	if !cfg.History.IsConfigured() {
		return h, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	s, err := history.Open(ctx, cfg.History.URL)
	if err != nil {
		return nil, err
	}
	h.Store = s
	h.Async = history.NewAsync(s, cfg.History, log)
	return h, nil
}

// ScrapeHandle holds the scrape queue and its trigger. Both are nil when
// the scrape backend is "none".
type ScrapeHandle struct {
	Queue   scrape.Queue
	Trigger *scrape.QueueTrigger
	closer  *closer
}

// Shutdown implements do.ShutdownerWithError.
func (h *ScrapeHandle) Shutdown() error {
	if h.Queue == nil {
		return nil
	}
	return h.closer.add("scrape queue", h.Queue.Close())
}

// ProvideScrape opens the configured scrape queue.
func ProvideScrape(i do.Injector) (*ScrapeHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	h := &ScrapeHandle{closer: do.MustInvoke[*closer](i)}

	switch strings.ToLower(cfg.Scrape.Backend) {
	case "", config.ScrapeNone:
		return h, nil
	case config.ScrapeRedis:
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()
		q, err := scrape.OpenRedis(ctx, cfg.Scrape.Redis)
		if err != nil {
			return nil, err
		}
		h.Queue = q
	default:
		h.Queue = scrape.NewMemoryQueue(cfg.Scrape.Redis.MaxRetries)
	}
	h.Trigger = scrape.NewTrigger(h.Queue, log)
	return h, nil
}

// ProviderHandle wraps the model provider with shutdown capability.
type ProviderHandle struct {
	llm.Provider
	closer *closer
}

// Shutdown implements do.ShutdownerWithError.
func (h *ProviderHandle) Shutdown() error {
	return h.closer.add("model provider", h.Provider.Close())
}

// ProvideLLM builds the configured model provider. A provider that cannot
// be built, usually for want of an API key, is replaced by one that fails
// every call with the build error, so routing-only commands still work.
func ProvideLLM(i do.Injector) (*ProviderHandle, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	h := &ProviderHandle{closer: do.MustInvoke[*closer](i)}

	p, err := llm.New(cfg.LLM)
	if err != nil {
		log.Debug("Model provider unavailable", logging.Err(err))
		h.Provider = unavailableProvider{err: err}
		return h, nil
	}
	h.Provider = p
	return h, nil
}

type unavailableProvider struct {
	err error
}

func (p unavailableProvider) Name() string { return "unavailable" }

func (p unavailableProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, p.err
}

func (p unavailableProvider) CompleteStructured(context.Context, llm.CompletionRequest, interface{}) error {
	return p.err
}

func (p unavailableProvider) IsAvailable(context.Context) bool { return false }
func (p unavailableProvider) Close() error                    { return nil }

// ProvideMetrics registers the vidq metrics on the app registry.
func ProvideMetrics(i do.Injector) (*observability.Metrics, error) {
	reg := do.MustInvoke[*prometheus.Registry](i)
	return observability.NewMetrics(reg), nil
}

// ProvideTracer provides the span helper.
func ProvideTracer(i do.Injector) (*observability.Tracer, error) {
	return observability.NewTracer(), nil
}

// ProvideEngine builds the analysis engine on the instrumented provider.
func ProvideEngine(i do.Injector) (*analysis.Engine, error) {
	provider, err := do.Invoke[*ProviderHandle](i)
	if err != nil {
		return nil, err
	}
	cfg := do.MustInvoke[*config.CLIConfig](i)
	metrics := do.MustInvoke[*observability.Metrics](i)
	tracer := do.MustInvoke[*observability.Tracer](i)
	log := do.MustInvoke[logging.Logger](i)

	instrumented := observability.InstrumentProvider(provider.Provider, metrics, tracer)
	return analysis.NewEngine(instrumented,
		analysis.WithLogger(log),
		analysis.WithMaxTranscriptChars(cfg.Resolver.MaxTranscriptChars),
	), nil
}

// ProvideRouter builds the intent router, backed by the topic index when
// search is enabled.
func ProvideRouter(i do.Injector) (*router.Router, error) {
	cfg := do.MustInvoke[*config.CLIConfig](i)
	log := do.MustInvoke[logging.Logger](i)
	index, err := do.Invoke[*SearchIndexHandle](i)
	if err != nil {
		return nil, err
	}

	opts := []router.Option{
		router.WithLogger(log),
		router.WithParser(query.NewParser(query.WithDefaultDuration(cfg.Resolver.DefaultDurationSec))),
	}
	if index.Index != nil {
		opts = append(opts, router.WithTopicMatcher(search.NewTopicMatcher(index.Index)))
	}
	return router.New(opts...), nil
}

// ProvideAssistant assembles the question pipeline.
func ProvideAssistant(i do.Injector) (*assistant.Assistant, error) {
	storeHandle, err := do.Invoke[*StoreHandle](i)
	if err != nil {
		return nil, err
	}
	engine, err := do.Invoke[*analysis.Engine](i)
	if err != nil {
		return nil, err
	}
	r, err := do.Invoke[*router.Router](i)
	if err != nil {
		return nil, err
	}
	cacheHandle, err := do.Invoke[*CacheHandle](i)
	if err != nil {
		return nil, err
	}
	scrapeHandle, err := do.Invoke[*ScrapeHandle](i)
	if err != nil {
		return nil, err
	}
	historyHandle, err := do.Invoke[*HistoryHandle](i)
	if err != nil {
		return nil, err
	}

	deps := assistant.Deps{
		Retriever:    storeHandle.Store,
		Metadata:     storeHandle.Store,
		Router:       r,
		Analyzer:     engine,
		Summarizer:   engine,
		Conversation: engine,
		Metrics:      do.MustInvoke[*observability.Metrics](i),
		Tracer:       do.MustInvoke[*observability.Tracer](i),
		Logger:       do.MustInvoke[logging.Logger](i),
	}
	if cacheHandle.Cache != nil {
		deps.Analyzer = cache.NewAnalyzer(cacheHandle.Cache, engine)
	}
	// Interface fields stay nil unless the component exists.
	if scrapeHandle.Trigger != nil {
		deps.Scraper = scrapeHandle.Trigger
	}
	if historyHandle.Async != nil {
		deps.History = historyHandle.Async
	}
	return assistant.New(deps)
}
