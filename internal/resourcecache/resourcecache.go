// Package resourcecache implements the Resource Cache & Purger (spec §4.9):
// a bounded LRU of per-customer ActiveResources bitsets, filled on miss from
// the Store, invalidated by a periodic age-based purger.
package resourcecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

// bitset is a fixed 256-bit (32-byte) bitset over the resource value-type
// space (spec §3: "per-customer bitset over a 256-valued value type space").
type bitset [32]byte

func (b *bitset) set(valueType uint8) {
	b[valueType/8] |= 1 << (valueType % 8)
}

func (b bitset) has(valueType uint8) bool {
	return b[valueType/8]&(1<<(valueType%8)) != 0
}

func (b bitset) bytes() []byte {
	return b[:]
}

func bitsetFromBytes(raw []byte) bitset {
	var b bitset
	copy(b[:], raw)
	return b
}

// Config configures a Cache.
type Config struct {
	// Capacity bounds the number of customer entries held in memory.
	Capacity int
	// PurgeInterval is the purge daemon's tick period (spec default 24h).
	PurgeInterval time.Duration
	// MaxAge bounds how old a resource sample may be before it is purged.
	// Zero disables purging.
	MaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 4096
	}
	if c.PurgeInterval <= 0 {
		c.PurgeInterval = 24 * time.Hour
	}
	return c
}

// Cache is the Resource Cache & Purger. The zero value is not usable; build
// with New.
type Cache struct {
	cfg   Config
	store *store.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache *lru.Cache[uint32, bitset]

	cron gocron.Scheduler
}

// New constructs a Cache.
func New(cfg Config, st *store.Store, log *zap.Logger) (*Cache, error) {
	cfg = cfg.withDefaults()
	c, err := lru.New[uint32, bitset](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("resourcecache: new lru: %w", err)
	}
	return &Cache{cfg: cfg, store: st, log: log.Named("resourcecache"), cache: c}, nil
}

// HasResourceData reports whether customerID has at least one sample of
// valueType, filling the cache from the Store on miss (§4.9).
func (c *Cache) HasResourceData(ctx context.Context, tag string, customerID uint32, valueType uint8) (bool, error) {
	c.mu.Lock()
	b, ok := c.cache.Get(customerID)
	c.mu.Unlock()
	if ok {
		return b.has(valueType), nil
	}

	b, err := c.fill(ctx, tag, customerID)
	if err != nil {
		return false, err
	}
	return b.has(valueType), nil
}

// fill loads customerID's bitset from the persisted ActiveResources row if
// one exists, otherwise rebuilds it from the authoritative Resource table
// via the DISTINCT scan of spec §4.9 and persists the result so the next
// restart can skip the scan.
func (c *Cache) fill(ctx context.Context, tag string, customerID uint32) (bitset, error) {
	persisted, err := c.store.Resources.GetActiveResources(ctx, tag, customerID)
	if err != nil {
		return bitset{}, err
	}
	if persisted != nil {
		b := bitsetFromBytes(persisted)
		c.mu.Lock()
		c.cache.Add(customerID, b)
		c.mu.Unlock()
		return b, nil
	}

	types, err := c.store.Resources.DistinctValueTypes(ctx, tag, customerID)
	if err != nil {
		return bitset{}, err
	}

	var b bitset
	for _, vt := range types {
		b.set(vt)
	}

	if err := c.store.Resources.SaveActiveResources(ctx, tag, customerID, b.bytes()); err != nil {
		c.log.Error("resourcecache: persist active resources failed", zap.Uint32("customer_id", customerID), zap.Error(err))
	}

	c.mu.Lock()
	c.cache.Add(customerID, b)
	c.mu.Unlock()
	return b, nil
}

// RecordResource marks customerID as now having data for valueType, updating
// an existing cache entry in place and persisting the change (§4.9).
// Callers still write the underlying sample via the Store separately.
func (c *Cache) RecordResource(ctx context.Context, tag string, customerID uint32, valueType uint8) {
	c.mu.Lock()
	b, ok := c.cache.Get(customerID)
	if ok {
		b.set(valueType)
		c.cache.Add(customerID, b)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := c.store.Resources.SaveActiveResources(ctx, tag, customerID, b.bytes()); err != nil {
		c.log.Error("resourcecache: persist active resources failed", zap.Uint32("customer_id", customerID), zap.Error(err))
	}
}

// evict drops a customer's cache entry, forcing the next lookup to refill
// from the Store.
func (c *Cache) evict(customerID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(customerID)
}

// StartPurger starts the periodic purge daemon, grounded on the same
// gocron usage as the Event Processor's SSL sweeper.
func (c *Cache) StartPurger(ctx context.Context, tag string) error {
	if c.cfg.MaxAge <= 0 {
		c.log.Info("resourcecache: purger disabled (max age is zero)")
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("resourcecache: create purge scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(c.cfg.PurgeInterval),
		gocron.NewTask(func() { c.purgeOnce(ctx, tag) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("resource-purge"),
	)
	if err != nil {
		return fmt.Errorf("resourcecache: schedule purge: %w", err)
	}

	c.cron = s
	s.Start()
	c.log.Info("resourcecache: purger started", zap.Duration("interval", c.cfg.PurgeInterval), zap.Duration("max_age", c.cfg.MaxAge))
	return nil
}

// StopPurger shuts down the purge daemon.
func (c *Cache) StopPurger() error {
	if c.cron == nil {
		return nil
	}
	return c.cron.Shutdown()
}

func (c *Cache) purgeOnce(ctx context.Context, tag string) {
	if _, err := c.Purge(ctx, tag); err != nil {
		c.log.Error("resourcecache: purge failed", zap.Error(err))
	}
}

// Purge runs the age-based purge immediately, outside the daemon's own tick
// — the manual trigger behind "/resource/purge" (§6). Returns the number of
// customers evicted from the cache.
func (c *Cache) Purge(ctx context.Context, tag string) (int, error) {
	if c.cfg.MaxAge <= 0 {
		return 0, fmt.Errorf("resourcecache: purge: max age is disabled")
	}
	cutoff := time.Now().Add(-c.cfg.MaxAge)
	cutoffTs1 := uint32(cutoff.Unix() / 3600)

	affected, err := c.store.Resources.PurgeOlderThan(ctx, tag, cutoffTs1)
	if err != nil {
		return 0, fmt.Errorf("resourcecache: purge: %w", err)
	}
	for _, customerID := range affected {
		c.evict(customerID)
	}
	c.log.Info("resourcecache: purge complete", zap.Int("customers_evicted", len(affected)))
	return len(affected), nil
}
