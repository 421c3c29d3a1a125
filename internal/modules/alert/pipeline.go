package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/georgemunganga/stockwatch/internal/config"
	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/georgemunganga/stockwatch/internal/modules/notification"
	"github.com/georgemunganga/stockwatch/internal/obs"
)

// Options tunes a Pipeline.
type Options struct {
	Consumer       string
	Subject        string
	BatchSize      int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	DedupWindow    time.Duration
}

// OptionsFromConfig maps service configuration onto pipeline options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Consumer:       cfg.FeedConsumer,
		Subject:        cfg.AlertSubject,
		BatchSize:      cfg.FeedBatchSize,
		PollInterval:   cfg.FeedPollInterval,
		PublishTimeout: cfg.PublishTimeout,
		DedupWindow:    cfg.AlertDedupWindow,
	}
}

func (o Options) withDefaults() Options {
	if o.Consumer == "" {
		o.Consumer = "alert-pipeline"
	}
	if o.Subject == "" {
		o.Subject = "Low stock alert"
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	return o
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Consumer             string   `json:"consumer"`
	Running              bool     `json:"running"`
	Consumed             uint64   `json:"consumed"`
	AlertsRaised         uint64   `json:"alertsRaised"`
	PublishFailures      uint64   `json:"publishFailures"`
	DuplicatesSuppressed uint64   `json:"duplicatesSuppressed"`
	DecodeErrors         uint64   `json:"decodeErrors"`
	ReadErrors           uint64   `json:"readErrors"`
	Positions            []uint64 `json:"positions"`
}

// Pipeline runs one consumer per feed shard. Each consumer handles its
// shard's changes in sequence order and commits its checkpoint after every
// change whatever the publish outcome, so a change is consumed at least once
// and its alert is published at most once per delivery.
type Pipeline struct {
	feed  changefeed.Feed
	pub   notification.Publisher
	opts  Options
	dedup *dedupWindow

	consumed, raised, failures, duplicates, decodeErrs, readErrs atomic.Uint64
	positions                                                    []atomic.Uint64
	running                                                      atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPipeline(feed changefeed.Feed, pub notification.Publisher, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		feed:      feed,
		pub:       pub,
		opts:      opts,
		dedup:     newDedupWindow(opts.DedupWindow),
		positions: make([]atomic.Uint64, feed.Shards()),
	}
}

// Start launches the shard consumers. It is a no-op if already running.
func (p *Pipeline) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.running.Store(true)
	for shard := 0; shard < p.feed.Shards(); shard++ {
		p.wg.Add(1)
		go p.consume(ctx, shard)
	}
	obs.Logger.Info("pipeline_started", "consumer", p.opts.Consumer, "shards", p.feed.Shards())
}

// Stop stops pulling new changes. Publishes already in flight finish within
// the publish timeout.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until every consumer has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
	p.mu.Lock()
	p.cancel = nil
	p.mu.Unlock()
	p.running.Store(false)
}

// Run starts the consumers and blocks until ctx is done and they have exited.
func (p *Pipeline) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	p.Wait()
	obs.Logger.Info("pipeline_stopped", "consumer", p.opts.Consumer)
	return nil
}

func (p *Pipeline) consume(ctx context.Context, shard int) {
	defer p.wg.Done()
	log := obs.Logger.With("consumer", p.opts.Consumer, "shard", shard)

	var pos uint64
	for {
		cp, err := p.feed.Checkpoint(ctx, p.opts.Consumer, shard)
		if err == nil {
			pos = cp
			break
		}
		p.readErrs.Add(1)
		log.Warn("checkpoint_read_failed", "error", err)
		if !p.idle(ctx, shard) {
			return
		}
	}
	p.positions[shard].Store(pos)

	for {
		if ctx.Err() != nil {
			return
		}
		changes, err := p.feed.Read(ctx, shard, pos, p.opts.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.readErrs.Add(1)
			var gap *changefeed.TrimmedError
			if errors.As(err, &gap) {
				log.Error("feed_gap", "error", err, "after", pos, "resume_after", gap.Oldest, "lost", gap.Oldest-pos)
				pos = gap.Oldest
				p.positions[shard].Store(pos)
				continue
			}
			log.Warn("feed_read_failed", "error", err, "after", pos)
			if !p.idle(ctx, shard) {
				return
			}
			continue
		}
		for _, c := range changes {
			if ctx.Err() != nil {
				return
			}
			p.handle(ctx, c)
			if err := p.feed.Commit(context.WithoutCancel(ctx), p.opts.Consumer, shard, c.Seq); err != nil {
				log.Warn("checkpoint_commit_failed", "error", err, "seq", c.Seq)
			}
			pos = c.Seq
			p.positions[shard].Store(pos)
		}
		if len(changes) == p.opts.BatchSize {
			continue
		}
		if !p.idle(ctx, shard) {
			return
		}
	}
}

// idle waits for a wake signal or the poll interval. It returns false once
// ctx is done.
func (p *Pipeline) idle(ctx context.Context, shard int) bool {
	t := time.NewTimer(p.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.feed.Wake(shard):
		return true
	case <-t.C:
		return true
	}
}

func (p *Pipeline) handle(ctx context.Context, c changefeed.Change) {
	p.consumed.Add(1)
	a, err := Detect(c)
	if err != nil {
		p.decodeErrs.Add(1)
		obs.Logger.Warn("change_undecodable", "error", err, "shard", c.Shard, "seq", c.Seq, "key", c.Key.String())
		return
	}
	if a == nil {
		return
	}
	if p.dedup.observe(a.dedupKey()) {
		p.duplicates.Add(1)
		obs.Logger.Info("alert_duplicate_suppressed", "tenant_id", a.TenantID, "product_id", a.ProductID, "seq", a.Seq)
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.PublishTimeout)
	defer cancel()
	if err := p.pub.Publish(pctx, a.Notification(p.opts.Subject)); err != nil {
		p.failures.Add(1)
		obs.Logger.Error("alert_publish_failed",
			"error", err,
			"tenant_id", a.TenantID,
			"product_id", a.ProductID,
			"stock", a.StockAtAlert,
			"threshold", a.ThresholdAtAlert,
			"seq", a.Seq,
		)
		return
	}
	p.raised.Add(1)
	obs.Logger.Info("alert_raised",
		"tenant_id", a.TenantID,
		"product_id", a.ProductID,
		"stock_before", a.StockBefore,
		"stock", a.StockAtAlert,
		"threshold", a.ThresholdAtAlert,
		"seq", a.Seq,
	)
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Consumer:             p.opts.Consumer,
		Running:              p.running.Load(),
		Consumed:             p.consumed.Load(),
		AlertsRaised:         p.raised.Load(),
		PublishFailures:      p.failures.Load(),
		DuplicatesSuppressed: p.duplicates.Load(),
		DecodeErrors:         p.decodeErrs.Load(),
		ReadErrors:           p.readErrs.Load(),
		Positions:            make([]uint64, len(p.positions)),
	}
	for i := range p.positions {
		s.Positions[i] = p.positions[i].Load()
	}
	return s
}

// StatsHandler serves Stats as JSON.
func (p *Pipeline) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(p.Stats())
}
