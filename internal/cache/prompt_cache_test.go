package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestKeyDeterminism(t *testing.T) {
	a := Key(KeyFields{
		Model:    "m",
		Messages: []any{map[string]any{"role": "user", "content": "hi"}},
	})
	b := Key(KeyFields{
		Messages: []any{map[string]any{"content": "hi", "role": "user"}},
		Model:    "m",
	})
	if a != b {
		t.Errorf("expected identical keys for reordered object fields, got %q != %q", a, b)
	}
}

func TestKeyDeterminismAcrossToolsAndToolChoiceOrdering(t *testing.T) {
	a := Key(KeyFields{
		Model: "m",
		Tools: []any{map[string]any{"name": "web_fetch", "description": "fetch a url"}},
		ToolChoice: map[string]any{"type": "tool", "name": "web_fetch"},
	})
	b := Key(KeyFields{
		Model: "m",
		Tools: []any{map[string]any{"description": "fetch a url", "name": "web_fetch"}},
		ToolChoice: map[string]any{"name": "web_fetch", "type": "tool"},
	})
	if a != b {
		t.Errorf("expected identical keys for reordered tools/tool_choice object fields, got %q != %q", a, b)
	}

	c := Key(KeyFields{
		Model: "m",
		Tools: []any{map[string]any{"name": "shell", "description": "run a command"}},
	})
	if a == c {
		t.Error("expected a different tool set to change the key")
	}
}

func TestKeyIgnoresUndefinedFields(t *testing.T) {
	a := Key(KeyFields{Model: "m"})
	b := Key(KeyFields{Model: "m", TopP: nil})
	if a != b {
		t.Errorf("nil fields should not perturb the key")
	}
}

func TestCacheReadIdempotenceAndNoAliasing(t *testing.T) {
	c := New(4, time.Minute)
	c.Set("k", json.RawMessage(`{"a":1}`))

	first, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	second, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(first) != string(second) {
		t.Errorf("clones should be structurally equal")
	}

	first[0] = 'X'
	third, _ := c.Get("k")
	if string(third) == string(first) {
		t.Error("mutating a returned clone must not affect the stored entry")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(2, time.Minute)
	c.Set("a", json.RawMessage(`1`))
	c.Set("b", json.RawMessage(`2`))
	c.Set("c", json.RawMessage(`3`)) // evicts "a"

	if _, ok := c.Get("a"); ok {
		t.Error("expected least-recently-used entry to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to survive")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheTTLBoundary(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	c.Set("k", json.RawMessage(`1`))

	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected immediate hit")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to have expired")
	}
}

func TestCacheSweepRemovesOnlyExpired(t *testing.T) {
	c := New(4, 10*time.Millisecond)
	c.Set("stale", json.RawMessage(`1`))
	time.Sleep(20 * time.Millisecond)
	c.Set("fresh", json.RawMessage(`2`))

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("expected Sweep to remove exactly the expired entry, removed %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("expected the fresh entry to survive the sweep")
	}
}

func TestAdmits(t *testing.T) {
	cases := []struct {
		ok       bool
		status   int
		toolCall bool
		want     bool
	}{
		{true, 200, false, true},
		{true, 200, true, false},
		{true, 201, false, false},
		{false, 200, false, false},
	}
	for _, c := range cases {
		if got := Admits(c.ok, c.status, c.toolCall); got != c.want {
			t.Errorf("Admits(%v,%d,%v) = %v, want %v", c.ok, c.status, c.toolCall, got, c.want)
		}
	}
}
