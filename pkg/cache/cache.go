// Package cache keeps analysis results in a badger key-value store so that
// repeated questions about the same video segment skip the model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/otherjamesbrown/vidq/pkg/analysis"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// DefaultTTL is how long a cached analysis stays valid.
const DefaultTTL = 24 * time.Hour

const analysisPrefix = "analysis:"

// Options configures a Cache.
type Options struct {
	// Path is the badger directory. Empty keeps the cache in memory.
	Path   string
	TTL    time.Duration
	Logger logging.Logger
}

// Cache is a TTL key-value store for analysis results.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger logging.Logger
}

// Open opens or creates the cache.
func Open(opts Options) (*Cache, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	} else {
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	c := &Cache{db: db, ttl: opts.TTL, logger: opts.Logger}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get loads the value stored under key into v. It reports false on a miss.
func (c *Cache) Get(key string, v any) (bool, error) {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key with the cache TTL.
func (c *Cache) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
}

// DropVideo removes every analysis cached for a video. Called after the
// transcript is re-ingested.
func (c *Cache) DropVideo(videoID string) error {
	return c.db.DropPrefix([]byte(analysisPrefix + videoID + ":"))
}

// Analyzer wraps another analyzer with the cache.
type Analyzer struct {
	cache *Cache
	inner analysis.Analyzer
}

// NewAnalyzer returns an analyzer that consults c before inner.
func NewAnalyzer(c *Cache, inner analysis.Analyzer) *Analyzer {
	return &Analyzer{cache: c, inner: inner}
}

// Analyze returns a cached result when one exists for the same question over
// the same chunks. Cache failures are logged and never fail the request.
func (a *Analyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	key := Key(req)
	log := a.cache.logger.WithContext(ctx)

	var cached analysis.Result
	hit, err := a.cache.Get(key, &cached)
	if err != nil {
		log.Warn("Cache read failed", logging.Err(err))
	}
	if hit {
		log.Debug("Analysis cache hit", logging.F("key", key))
		return &cached, nil
	}

	result, err := a.inner.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(key, result); err != nil {
		log.Warn("Cache write failed", logging.Err(err))
	}
	return result, nil
}

// Key derives the cache key for an analysis request. The video ID stays in
// clear text so DropVideo can remove a video's entries by prefix.
func Key(req analysis.Request) string {
	videoID := ""
	if len(req.Chunks) > 0 {
		videoID = req.Chunks[0].VideoID
	} else if req.Metadata != nil {
		videoID = req.Metadata.VideoID
	}

	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(string(req.Intent))
	write(strings.ToLower(strings.Join(strings.Fields(req.Query), " ")))
	write(req.TimeRange)
	write(strings.ToLower(req.Topic))
	for _, c := range req.Chunks {
		write(strconv.Itoa(c.Order))
		write(c.Text)
	}
	if req.Metadata != nil {
		meta, _ := json.Marshal(req.Metadata)
		write(string(meta))
	}
	return analysisPrefix + videoID + ":" + hex.EncodeToString(h.Sum(nil))
}
