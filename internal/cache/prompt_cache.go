// Package cache implements the prompt cache (spec §4.4): a content-addressed
// LRU with TTL that only ever admits terminal, non-tool-use responses.
//
// No corpus example ships a ready-made LRU+TTL cache (see DESIGN.md), so
// this is hand-rolled with container/list, following the mutex-guarded
// singleton idiom used throughout the corpus (memory.Engine, tool.Registry).
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Key fields are exactly the ones spec §4.4 names; anything else (session
// id, headers) must never be passed to Key.
type KeyFields struct {
	Model       any `json:"model,omitempty"`
	Input       any `json:"input,omitempty"`
	Messages    any `json:"messages,omitempty"`
	Tools       any `json:"tools,omitempty"`
	ToolChoice  any `json:"tool_choice,omitempty"`
	Temperature any `json:"temperature,omitempty"`
	TopP        any `json:"top_p,omitempty"`
	MaxTokens   any `json:"max_tokens,omitempty"`
}

// Key computes the SHA-256 content-address of the canonicalized fields:
// recursively sorted object keys, undefined (nil pointer / missing) fields
// dropped, array order preserved.
func Key(f KeyFields) string {
	canon := canonicalize(map[string]any{
		"model":       f.Model,
		"input":       f.Input,
		"messages":    f.Messages,
		"tools":       f.Tools,
		"tool_choice": f.ToolChoice,
		"temperature": f.Temperature,
		"top_p":       f.TopP,
		"max_tokens":  f.MaxTokens,
	})
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalize drops nil map values at every depth (nil slice elements are
// kept) and returns plain maps and slices; the sorted key order comes from encoding/json, which already sorts
// map[string]any keys on marshal — the explicit walk here exists only to
// drop nils, which json.Marshal alone will not do (it emits "null").
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			out = append(out, canonicalize(val))
		}
		return out
	default:
		return v
	}
}

// entry is the stored cache value; Response is kept as a raw JSON blob so
// that clones are exact and cheap.
type entry struct {
	key       string
	response  json.RawMessage
	createdAt time.Time
	expiresAt *time.Time
}

// Cache is an ordered SHA-256-keyed LRU with TTL eviction, exactly the
// structure spec §4.4 describes.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	items      map[string]*list.Element
	order      *list.List // front = least recently used, back = most recently used
}

func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		items:      make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns a deep clone of the stored response for key, or false if
// absent or expired. Two successive Get calls never alias each other or the
// stored entry (spec §8 "Idempotence of cache read").
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expiresAt != nil && time.Now().After(*e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}

	c.order.MoveToBack(el)
	return cloneJSON(e.response), true
}

// Set stores response under key, evicting the least-recently-used entry if
// the cache is at capacity. response must already satisfy the admission
// rule (checked by the caller — the prompt cache itself is unconditional).
func (c *Cache) Set(key string, response json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expires *time.Time
	if c.ttl > 0 {
		t := now.Add(c.ttl)
		expires = &t
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.response = cloneJSON(response)
		e.createdAt = now
		e.expiresAt = expires
		c.order.MoveToBack(el)
		return
	}

	e := &entry{key: key, response: cloneJSON(response), createdAt: now, expiresAt: expires}
	el := c.order.PushBack(e)
	c.items[key] = el

	for c.order.Len() > c.maxEntries {
		front := c.order.Front()
		if front == nil {
			break
		}
		fe := front.Value.(*entry)
		delete(c.items, fe.key)
		c.order.Remove(front)
	}
}

// Len reports the number of live (not necessarily unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep proactively evicts expired entries and reports how many were
// removed, for a periodic background sweep rather than relying solely on
// lazy expiry at Get time.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if e.expiresAt != nil && now.After(*e.expiresAt) {
			c.order.Remove(el)
			delete(c.items, e.key)
			removed++
		}
		el = next
	}
	return removed
}

func cloneJSON(v json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

// Admits reports whether a response is eligible for caching per spec §4.4:
// ok, HTTP 200, and no tool-call list on the first choice.
func Admits(ok bool, status int, hasToolCalls bool) bool {
	return ok && status == 200 && !hasToolCalls
}
