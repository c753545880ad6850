package transcription

import (
	"sync"

	"github.com/nijaru/yt-summarizer/metrics"
)

// Cache maps video ids to transcripts for the lifetime of the process. Only
// confirmed transcripts are ever stored.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]string)}
}

func (c *Cache) Get(videoID string) (string, bool) {
	c.mu.RLock()
	text, ok := c.entries[videoID]
	c.mu.RUnlock()

	status := metrics.StatusMiss
	if ok {
		status = metrics.StatusHit
	}
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, status).Inc()
	return text, ok
}

func (c *Cache) Set(videoID, text string) {
	if videoID == "" || text == "" {
		return
	}
	c.mu.Lock()
	c.entries[videoID] = text
	c.mu.Unlock()
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.StatusSuccess).Inc()
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]string)
	c.mu.Unlock()
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.StatusSuccess).Inc()
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
