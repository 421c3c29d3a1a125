package changefeed

import (
	"context"
	"errors"
)

// ErrShardRange is returned for a shard outside [0, Shards()).
var ErrShardRange = errors.New("changefeed: shard out of range")

// ErrTrimmed is returned by Read when changes after the requested position are
// no longer retained.
var ErrTrimmed = errors.New("changefeed: changes trimmed")

// Feed is the consumer side of the change stream.
//
// Read returns changes of one shard with Seq > after, in Seq order, or an
// error wrapping ErrTrimmed if some of them are gone. Consumers track their
// position with Checkpoint/Commit; a consumer that restarts from its
// checkpoint sees every change it had not committed again. Retention holds
// back for every consumer that has called Checkpoint or Commit.
type Feed interface {
	Shards() int
	Read(ctx context.Context, shard int, after uint64, limit int) ([]Change, error)
	Checkpoint(ctx context.Context, consumer string, shard int) (uint64, error)
	Commit(ctx context.Context, consumer string, shard int, seq uint64) error
	// Wake receives a signal when new changes may be available on shard.
	// Signals are coalesced; consumers must still poll.
	Wake(shard int) <-chan struct{}
}

type wakers []chan struct{}

func newWakers(n int) wakers {
	w := make(wakers, n)
	for i := range w {
		w[i] = make(chan struct{}, 1)
	}
	return w
}

func (w wakers) signal(shard int) {
	if shard < 0 || shard >= len(w) {
		return
	}
	select {
	case w[shard] <- struct{}{}:
	default:
	}
}

func (w wakers) get(shard int) <-chan struct{} {
	if shard < 0 || shard >= len(w) {
		return nil
	}
	return w[shard]
}
