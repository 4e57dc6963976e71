package application

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/handler"
)

const eventBuffer = 100

var ErrEventsClosed = errors.New("event source closed")

// Run sweeps on every ready signal and feeds reaction events to the workers
// until ctx is done or the event source closes. Events for the same message always reach the same
// worker, so they are handled in arrival order.
func (vl *VoteListener) Run(ctx context.Context, events handler.EventSource) error {
	workers := make([]chan domain.ReactionEvent, vl.workers)
	wg := new(sync.WaitGroup)
	for i := range workers {
		workers[i] = make(chan domain.ReactionEvent, eventBuffer)
		wg.Add(1)
		go func(evCh <-chan domain.ReactionEvent) {
			defer wg.Done()
			for ev := range evCh {
				outcome, err := vl.HandleReaction(ctx, ev)
				if err != nil {
					vl.logger.Warn("failed to handle reaction",
						"message", ev.Key(), "reaction", ev.Reaction, "user", ev.UserID, "error", err)
					continue
				}
				vl.logger.Debug("reaction handled", "message", ev.Key(), "outcome", outcome.String())
			}
		}(workers[i])
	}
	defer func() {
		for _, w := range workers {
			close(w)
		}
		wg.Wait()
	}()

	var sweeping atomic.Bool
	sweepWg := new(sync.WaitGroup)
	defer sweepWg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-events.Ready():
			if !sweeping.CompareAndSwap(false, true) {
				continue
			}
			sweepWg.Add(1)
			go func() {
				defer sweepWg.Done()
				defer sweeping.Store(false)
				if _, err := vl.Sweep(ctx); err != nil {
					vl.logger.Warn("sweep aborted", "error", err)
				}
			}()
		case ev, ok := <-events.Reactions():
			if !ok {
				return ErrEventsClosed
			}
			select {
			case workers[shard(ev.Key(), len(workers))] <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
