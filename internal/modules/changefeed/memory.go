package changefeed

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type shardLog struct {
	base    uint64 // seq of the last trimmed change
	entries []Change
}

// Log is an in-memory Feed. Producers call Append while holding whatever lock
// makes the mutation itself atomic, so the change and the mutation become
// visible together.
type Log struct {
	mu          sync.Mutex
	shards      []shardLog
	checkpoints map[string][]uint64
	wake        wakers
	now         func() time.Time
}

// NewLog creates a Log with n shards.
func NewLog(n int) *Log {
	if n <= 0 {
		n = 1
	}
	return &Log{
		shards:      make([]shardLog, n),
		checkpoints: make(map[string][]uint64),
		wake:        newWakers(n),
		now:         time.Now,
	}
}

func (l *Log) Shards() int { return len(l.shards) }

// Append records a change for key and assigns its shard and sequence number.
func (l *Log) Append(kind Kind, key Key, before, after Image) Change {
	shard := ShardOf(key, len(l.shards))
	l.mu.Lock()
	sl := &l.shards[shard]
	c := Change{
		Seq:    sl.base + uint64(len(sl.entries)) + 1,
		Shard:  shard,
		Kind:   kind,
		Key:    key,
		Before: before,
		After:  after,
		At:     l.now().UTC(),
	}
	sl.entries = append(sl.entries, c)
	l.mu.Unlock()
	l.wake.signal(shard)
	return c
}

func (l *Log) Read(ctx context.Context, shard int, after uint64, limit int) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if shard < 0 || shard >= len(l.shards) {
		return nil, ErrShardRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sl := l.shards[shard]
	if after < sl.base {
		return nil, &TrimmedError{Shard: shard, After: after, Oldest: sl.base}
	}
	start := int(after - sl.base)
	if start >= len(sl.entries) {
		return nil, nil
	}
	end := len(sl.entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]Change, end-start)
	copy(out, sl.entries[start:end])
	return out, nil
}

func (l *Log) Checkpoint(ctx context.Context, consumer string, shard int) (uint64, error) {
	if shard < 0 || shard >= len(l.shards) {
		return 0, ErrShardRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.register(consumer)[shard], nil
}

// register returns the consumer's positions, creating them on first use. A new
// consumer starts at the oldest retained change of every shard and holds back
// trimming from then on.
func (l *Log) register(consumer string) []uint64 {
	cp, ok := l.checkpoints[consumer]
	if !ok {
		cp = make([]uint64, len(l.shards))
		for i := range l.shards {
			cp[i] = l.shards[i].base
		}
		l.checkpoints[consumer] = cp
	}
	return cp
}

// Commit stores the consumer's position and drops changes every known
// consumer has committed. Positions never move backwards.
func (l *Log) Commit(ctx context.Context, consumer string, shard int, seq uint64) error {
	if shard < 0 || shard >= len(l.shards) {
		return ErrShardRange
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := l.register(consumer)
	if seq > cp[shard] {
		cp[shard] = seq
	}
	l.trim(shard)
	return nil
}

func (l *Log) trim(shard int) {
	low := ^uint64(0)
	for _, cp := range l.checkpoints {
		if cp[shard] < low {
			low = cp[shard]
		}
	}
	sl := &l.shards[shard]
	if low <= sl.base {
		return
	}
	n := int(low - sl.base)
	if n > len(sl.entries) {
		n = len(sl.entries)
	}
	sl.entries = append([]Change(nil), sl.entries[n:]...)
	sl.base += uint64(n)
}

// TrimmedError reports a Read positioned before the oldest retained change.
type TrimmedError struct {
	Shard  int
	After  uint64
	Oldest uint64 // seq of the last trimmed change
}

func (e *TrimmedError) Error() string {
	return fmt.Sprintf("changefeed: shard %d trimmed through %d, read after %d", e.Shard, e.Oldest, e.After)
}

func (e *TrimmedError) Unwrap() error { return ErrTrimmed }

// Len returns the number of retained changes on shard.
func (l *Log) Len(shard int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if shard < 0 || shard >= len(l.shards) {
		return 0
	}
	return len(l.shards[shard].entries)
}

func (l *Log) Wake(shard int) <-chan struct{} { return l.wake.get(shard) }
