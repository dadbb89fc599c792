// Package flight coalesces concurrent identical requests: for a given key at
// most one execution is in flight, and every caller that arrived while it ran
// receives the same outcome.
package flight

import (
	"context"
	"sync"
)

// Call is one in-flight execution. It exists only while the owner runs and is
// destroyed once the result has been published.
type Call struct {
	done    chan struct{}
	val     any
	err     error
	waiters int
}

// Group manages in-flight calls by key.
type Group struct {
	mu sync.Mutex
	m  map[string]*Call
}

// New creates an empty Group.
func New() *Group {
	return &Group{m: make(map[string]*Call)}
}

// Do executes fn for key unless a call for the same key is already in flight,
// in which case it waits for that call's outcome. shared is true when the
// result came from another caller's execution.
//
// The owner always runs fn to completion and publishes the result to every
// waiter. A waiter whose ctx ends first abandons the flight and gets the ctx
// error; the in-flight work is unaffected.
func (g *Group) Do(ctx context.Context, key string, fn func() (any, error)) (val any, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.waiters++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			g.mu.Lock()
			if g.m[key] == c {
				c.waiters--
			}
			g.mu.Unlock()
			return nil, ctx.Err(), true
		}
	}

	c := &Call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	c.val, c.err = fn()

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err, false
}

// Waiters reports how many callers are attached to the in-flight call for
// key, not counting the owner. Zero when nothing is in flight.
func (g *Group) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.m[key]; ok {
		return c.waiters
	}
	return 0
}

// Forget drops the in-flight record for key so the next caller starts a fresh
// execution. Existing waiters still receive the original outcome.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}
