package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var (
	store *gocache.Cache
	once  sync.Once
)

// Init configures the process-wide read cache. Safe to call more than once;
// only the first call takes effect.
func Init(defaultTTL time.Duration) {
	once.Do(func() {
		store = gocache.New(defaultTTL, 2*defaultTTL)
	})
}

func instance() *gocache.Cache {
	Init(15 * time.Second)
	return store
}

// Get returns a cached value and whether it was present.
func Get(key string) (interface{}, bool) {
	return instance().Get(key)
}

// Set stores a value under the default TTL.
func Set(key string, value interface{}) {
	instance().SetDefault(key, value)
}

// Flush drops every cached entry.
func Flush() {
	instance().Flush()
}
