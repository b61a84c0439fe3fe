package chat

import "sync"

// Page is one window of a document's conversation, newest-first. NextCursor
// is the opaque token for the page of strictly older messages, empty when
// there is none.
type Page struct {
	Messages   []Message
	NextCursor string
}

// Snapshot is a deep copy of the cache contents, suitable for a later Restore.
type Snapshot struct {
	pages []Page
	valid bool
}

// ConversationCache holds the client's paginated view of a document's
// conversation. The first page always holds the most recent window. All
// mutations happen under a single lock so readers never observe a
// half-applied patch.
type ConversationCache struct {
	mu    sync.Mutex
	pages []Page
	valid bool
}

// NewConversationCache creates an empty, invalidated cache. The first
// authoritative fetch populates it.
func NewConversationCache() *ConversationCache {
	return &ConversationCache{}
}

// Pages returns a deep copy of the cached pages. Callers may read and retain
// the result freely without racing cache mutations.
func (c *ConversationCache) Pages() []Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyPages(c.pages)
}

// Valid reports whether the cache holds authoritative data. False means the
// next reader should trigger a refetch.
func (c *ConversationCache) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}

// Update applies fn to the entire paginated structure atomically. fn receives
// a copy it may mutate and return; the returned slice becomes the new
// contents. The cache is marked valid afterwards.
func (c *ConversationCache) Update(fn func(pages []Page) []Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = fn(copyPages(c.pages))
	c.valid = true
}

// Invalidate marks the contents stale, forcing the next authoritative fetch.
// The pages themselves are kept so stale data can still render meanwhile.
func (c *ConversationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// TakeSnapshot captures the full cache state for a later Restore.
func (c *ConversationCache) TakeSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{pages: copyPages(c.pages), valid: c.valid}
}

// Restore replaces the cache contents with a previously taken snapshot.
func (c *ConversationCache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = copyPages(snap.pages)
	c.valid = snap.valid
}

func copyPages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = Page{
			Messages:   append([]Message(nil), p.Messages...),
			NextCursor: p.NextCursor,
		}
	}
	return out
}
