package di

import (
	"container/heap"
	"context"
	"fmt"
)

// Starter and Stopper are the optional lifecycle interfaces a Hosted
// instance may implement (spec §4.3 "hosted services start/stop in
// priority order"). An instance implementing neither is still
// constructed and cached, but contributes nothing to startup/shutdown.
type Starter interface {
	Start(ctx context.Context) error
}

type Stopper interface {
	Stop(ctx context.Context) error
}

// hostedEntry pairs a constructed instance with the ordering fields used
// by the startup heap: descending priority, then ascending registration
// sequence (spec §8 "Hosted priority": higher priority starts first;
// equal priority preserves registration order). Adapted from
// kernel/lifecycle.go's container/heap priority queue.
type hostedEntry struct {
	desc     *Descriptor
	instance any
	priority int
	seq      int
}

type hostedHeap []*hostedEntry

func (h hostedHeap) Len() int { return len(h) }
func (h hostedHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h hostedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hostedHeap) Push(x any)        { *h = append(*h, x.(*hostedEntry)) }
func (h *hostedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// StartHosted constructs every Hosted descriptor registered on c, then
// calls Start (for instances implementing Starter) in priority order. It
// returns the ordered, constructed entries so StopHosted can reverse
// exactly that order at shutdown (spec §5 "hosted services stop in
// reverse startup order").
func StartHosted(ctx context.Context, c *Container) ([]any, error) {
	c.sh.mu.RLock()
	var entries []*hostedEntry
	for _, list := range c.sh.descriptors {
		for _, d := range list {
			if d.Lifetime != Hosted {
				continue
			}
			// d.seq is assigned once in Register, independent of which
			// map bucket d lands in, so the tiebreak below stays stable
			// across runs even though map iteration order is not.
			entries = append(entries, &hostedEntry{desc: d, priority: d.Priority, seq: d.seq})
		}
	}
	c.sh.mu.RUnlock()

	h := hostedHeap(entries)
	heap.Init(&h)

	started := make([]any, 0, len(entries))
	for h.Len() > 0 {
		entry := heap.Pop(&h).(*hostedEntry)
		inst, err := c.resolve(entry.desc, entry.desc.Key.Tag, nil)
		if err != nil {
			return started, fmt.Errorf("di: starting hosted %s: %w", entry.desc.Key.Base, err)
		}
		if s, ok := inst.(Starter); ok {
			if err := s.Start(ctx); err != nil {
				return started, fmt.Errorf("di: starting hosted %s: %w", entry.desc.Key.Base, err)
			}
		}
		started = append(started, inst)
	}
	return started, nil
}

// StopHosted stops instances in the reverse of the order StartHosted
// returned them, best-effort: a Stop failure is recorded but does not
// prevent stopping the remaining instances.
func StopHosted(ctx context.Context, started []any) error {
	var firstErr error
	for i := len(started) - 1; i >= 0; i-- {
		s, ok := started[i].(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
