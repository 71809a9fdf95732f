// Package destination searches the destinations endpoint through a small
// expiring cache persisted in the durable store.
package destination

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/travel-requests/internal/core/events"
	"github.com/frahmantamala/travel-requests/internal/storage"
)

const (
	CacheKey          = "travel-destinations-cache"
	DefaultTTL        = 6 * time.Hour
	DefaultMaxEntries = 20
	DefaultLimit      = 10

	persistTimeout = 2 * time.Second
)

type Destination struct {
	ID        int64   `json:"id"`
	Slug      string  `json:"slug"`
	CityID    int64   `json:"city_id"`
	City      string  `json:"city"`
	State     *string `json:"state"`
	StateCode *string `json:"state_code,omitempty"`
	Country   string  `json:"country"`
	Label     string  `json:"label"`
}

// CacheEntry holds the result of one query. Timestamp is in unix milliseconds.
type CacheEntry struct {
	Timestamp int64         `json:"timestamp"`
	Data      []Destination `json:"data"`
}

type Getter interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

type Options struct {
	TTL        time.Duration
	MaxEntries int
	Limit      int
	Now        func() time.Time
}

type Store struct {
	api     Getter
	durable storage.Store
	bus     events.Publisher
	logger  *slog.Logger

	ttl        time.Duration
	maxEntries int
	limit      int
	now        func() time.Time

	mu      sync.Mutex
	cache   map[string]CacheEntry
	pending int
}

// NewStore builds the store and loads any cache left in durable storage.
// durable may be nil, in which case the cache lives only in memory.
func NewStore(ctx context.Context, api Getter, durable storage.Store, bus events.Publisher, logger *slog.Logger, opts Options) *Store {
	s := &Store{
		api:        api,
		durable:    durable,
		bus:        bus,
		logger:     logger,
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		limit:      opts.Limit,
		now:        opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.maxEntries <= 0 {
		s.maxEntries = DefaultMaxEntries
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.cache = s.load(ctx)
	return s
}

func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Search returns destinations matching query. Results younger than the TTL
// are served from the cache; transport errors are returned as they come.
func (s *Store) Search(ctx context.Context, query string) ([]Destination, error) {
	key := NormalizeQuery(query)
	if key == "" {
		return []Destination{}, nil
	}

	s.mu.Lock()
	entry, ok := s.cache[key]
	if ok && s.now().UnixMilli()-entry.Timestamp < s.ttl.Milliseconds() {
		s.mu.Unlock()
		s.logger.Debug("destination cache hit", "query", key, "results", len(entry.Data))
		return cloneDestinations(entry.Data), nil
	}
	s.pending++
	s.mu.Unlock()
	s.notify(ctx, "loading")

	defer func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
		s.notify(ctx, "loaded")
	}()

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(s.limit))
	if err := s.api.Get(ctx, "/destinations", params, &resp); err != nil {
		return nil, err
	}

	results := decodeList(resp.Data)
	if results == nil {
		s.logger.Debug("unexpected destinations payload", "query", key)
		results = []Destination{}
	}

	s.mu.Lock()
	s.cache[key] = CacheEntry{Timestamp: s.now().UnixMilli(), Data: results}
	s.trimLocked()
	snapshot, err := json.Marshal(s.cache)
	s.mu.Unlock()

	if err == nil {
		s.persist(ctx, snapshot)
	}

	return cloneDestinations(results), nil
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending > 0
}

// Cached returns the cache entry for query, if any, regardless of age.
func (s *Store) Cached(query string) (CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[NormalizeQuery(query)]
	return entry, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// trimLocked drops the oldest entries until the cache fits.
func (s *Store) trimLocked() {
	if len(s.cache) <= s.maxEntries {
		return
	}

	keys := make([]string, 0, len(s.cache))
	for k := range s.cache {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := s.cache[keys[i]].Timestamp, s.cache[keys[j]].Timestamp
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys[:len(keys)-s.maxEntries] {
		delete(s.cache, k)
	}
}

func (s *Store) load(ctx context.Context) map[string]CacheEntry {
	cache := map[string]CacheEntry{}
	if s.durable == nil {
		return cache
	}

	raw, err := s.durable.Get(ctx, CacheKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("destination cache unavailable", "error", err)
		}
		return cache
	}
	if err := json.Unmarshal(raw, &cache); err != nil || cache == nil {
		s.logger.Debug("ignoring unreadable destination cache", "error", err)
		return map[string]CacheEntry{}
	}
	return cache
}

func (s *Store) persist(ctx context.Context, snapshot []byte) {
	if s.durable == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.durable.Set(ctx, CacheKey, snapshot, 0); err != nil {
		s.logger.Debug("destination cache not persisted", "error", err)
	}
}

func (s *Store) notify(ctx context.Context, change string) {
	events.Notify(ctx, s.bus, s.logger, events.DestinationsChanged, map[string]interface{}{"change": change})
}

func decodeList(raw json.RawMessage) []Destination {
	if len(raw) == 0 {
		return nil
	}
	var list []Destination
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	if list == nil {
		return nil
	}
	return list
}

func cloneDestinations(in []Destination) []Destination {
	out := make([]Destination, len(in))
	copy(out, in)
	return out
}
