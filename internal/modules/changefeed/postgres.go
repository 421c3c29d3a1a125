package changefeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// NotifyChannel is the LISTEN/NOTIFY channel that carries the shard number of
// each committed change.
const NotifyChannel = "product_changes"

// AppendTx records a change inside the caller's transaction. The per-shard
// counter row stays locked until tx ends, so changes of one shard commit in
// sequence order and the sequence has no gaps.
func AppendTx(ctx context.Context, tx *sql.Tx, shards int, kind Kind, key Key, before, after Image) (Change, error) {
	c := Change{
		Shard:  ShardOf(key, shards),
		Kind:   kind,
		Key:    key,
		Before: before,
		After:  after,
		At:     time.Now().UTC(),
	}
	err := tx.QueryRowContext(ctx,
		`UPDATE feed_shards SET last_seq = last_seq + 1 WHERE shard = $1 RETURNING last_seq`,
		c.Shard).Scan(&c.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Change{}, fmt.Errorf("feed shard %d is not provisioned, run migrate", c.Shard)
	}
	if err != nil {
		return Change{}, err
	}
	beforeJSON, err := encodeImage(before)
	if err != nil {
		return Change{}, err
	}
	afterJSON, err := encodeImage(after)
	if err != nil {
		return Change{}, err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO product_changes (shard,seq,kind,pk,sk,before_image,after_image,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.Shard, c.Seq, string(c.Kind), key.Partition, key.Sort, beforeJSON, afterJSON, c.At); err != nil {
		return Change{}, err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, strconv.Itoa(c.Shard)); err != nil {
		return Change{}, err
	}
	return c, nil
}

// encodeImage returns nil for a missing image so the column stays NULL.
func encodeImage(img Image) (any, error) {
	if img == nil {
		return nil, nil
	}
	b, err := json.Marshal(img)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeImage(b []byte) (Image, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var img Image
	if err := json.Unmarshal(b, &img); err != nil {
		return nil, err
	}
	return img, nil
}

// PostgresFeed reads the product_changes table.
type PostgresFeed struct {
	db       *sql.DB
	shards   int
	wake     wakers
	listener *pq.Listener
}

// NewPostgresFeed creates a feed over db with the given shard count. The
// count must match the one the writers use.
func NewPostgresFeed(db *sql.DB, shards int) *PostgresFeed {
	if shards <= 0 {
		shards = 1
	}
	return &PostgresFeed{db: db, shards: shards, wake: newWakers(shards)}
}

// Listen subscribes to change notifications so consumers wake before their
// next poll. Without it consumers rely on polling alone.
func (f *PostgresFeed) Listen(dsn string, onEvent func(pq.ListenerEventType, error)) error {
	l := pq.NewListener(dsn, 100*time.Millisecond, 10*time.Second, onEvent)
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return err
	}
	f.listener = l
	go func() {
		for n := range l.Notify {
			if n == nil {
				// reconnected; notifications may have been missed
				for i := 0; i < f.shards; i++ {
					f.wake.signal(i)
				}
				continue
			}
			if shard, err := strconv.Atoi(n.Extra); err == nil {
				f.wake.signal(shard)
			}
		}
	}()
	return nil
}

// Close stops listening for notifications.
func (f *PostgresFeed) Close() error {
	if f.listener == nil {
		return nil
	}
	return f.listener.Close()
}

func (f *PostgresFeed) Shards() int { return f.shards }

func (f *PostgresFeed) Read(ctx context.Context, shard int, after uint64, limit int) ([]Change, error) {
	if shard < 0 || shard >= f.shards {
		return nil, ErrShardRange
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := f.db.QueryContext(ctx, `
SELECT seq,kind,pk,sk,before_image,after_image,created_at
FROM product_changes WHERE shard=$1 AND seq>$2 ORDER BY seq LIMIT $3`, shard, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var changes []Change
	for rows.Next() {
		c := Change{Shard: shard}
		var kind string
		var before, after []byte
		if err := rows.Scan(&c.Seq, &kind, &c.Key.Partition, &c.Key.Sort, &before, &after, &c.At); err != nil {
			return nil, err
		}
		c.Kind = Kind(kind)
		if c.Before, err = decodeImage(before); err != nil {
			return nil, fmt.Errorf("change %d/%d before image: %w", shard, c.Seq, err)
		}
		if c.After, err = decodeImage(after); err != nil {
			return nil, fmt.Errorf("change %d/%d after image: %w", shard, c.Seq, err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (f *PostgresFeed) Checkpoint(ctx context.Context, consumer string, shard int) (uint64, error) {
	var seq uint64
	err := f.db.QueryRowContext(ctx,
		`SELECT seq FROM feed_checkpoints WHERE consumer=$1 AND shard=$2`, consumer, shard).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (f *PostgresFeed) Commit(ctx context.Context, consumer string, shard int, seq uint64) error {
	_, err := f.db.ExecContext(ctx, `
INSERT INTO feed_checkpoints (consumer,shard,seq) VALUES ($1,$2,$3)
ON CONFLICT (consumer,shard) DO UPDATE SET seq=EXCLUDED.seq, updated_at=NOW()
WHERE feed_checkpoints.seq < EXCLUDED.seq`, consumer, shard, seq)
	return err
}

func (f *PostgresFeed) Wake(shard int) <-chan struct{} { return f.wake.get(shard) }
