// Package synctarget defines the agent-synchronisation capability the
// restore loop calls whenever a pass might have invalidated live state
// through a dependency edge. The real synchroniser talks to remote test
// agents and lives outside this module; this package only defines the
// narrow interface the restore loop consumes and an in-memory fake for
// tests.
package synctarget

import "context"

// Syncer reconciles the live instance store against the current truth for
// every instance under prefix. confd's restore loop always calls this with
// the root prefix "/:" after a pass where a dependency may have fired.
type Syncer interface {
	Sync(ctx context.Context, prefix string) error
}

// Noop never contacts anything; suitable for CREATE/VERIFY operations and
// for tests that don't exercise the dependency-cascade path.
type Noop struct{}

func (Noop) Sync(context.Context, string) error { return nil }

// Counting wraps another Syncer and records how many times Sync was called,
// for tests asserting the restore loop's dependency-cascade behavior.
type Counting struct {
	Next  Syncer
	Calls int
}

func (c *Counting) Sync(ctx context.Context, prefix string) error {
	c.Calls++
	if c.Next != nil {
		return c.Next.Sync(ctx, prefix)
	}
	return nil
}
