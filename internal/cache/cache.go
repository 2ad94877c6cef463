package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is a keyed store with expiring entries.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Len() int
}

// Cleaner is implemented by caches that can drop expired entries on demand.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps registered caches until its context ends.
type Janitor struct {
	mu     sync.Mutex
	caches []Cleaner
	done   chan struct{}
}

func NewJanitor() *Janitor {
	return &Janitor{}
}

// Register adds c to the sweep set.
func (j *Janitor) Register(c Cleaner) {
	j.mu.Lock()
	j.caches = append(j.caches, c)
	j.mu.Unlock()
}

// Sweep runs one pass and returns the number of evicted entries.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	caches := append([]Cleaner(nil), j.caches...)
	j.mu.Unlock()
	n := 0
	for _, c := range caches {
		n += c.CleanExpired()
	}
	return n
}

// Start launches the sweep loop. Call Wait after cancelling ctx.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := j.Sweep(); n > 0 {
					slog.DebugContext(ctx, "Cache sweep", "evicted", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (j *Janitor) Wait() {
	if j.done != nil {
		<-j.done
	}
}
