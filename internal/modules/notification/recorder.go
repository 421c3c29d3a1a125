package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is an alert as listed by GET /alerts.
type Record struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ProductID string    `json:"productId"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder keeps the most recent messages in a fixed-size ring.
type Recorder struct {
	mu    sync.Mutex
	ring  []Record
	next  int
	full  bool
	newID func() string
	now   func() time.Time
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 200
	}
	return &Recorder{ring: make([]Record, size), newID: uuid.NewString, now: time.Now}
}

func (r *Recorder) Publish(_ context.Context, msg Message) error {
	rec := Record{
		ID:        r.newID(),
		TenantID:  msg.Attributes[AttrTenant],
		ProductID: msg.Attributes[AttrProduct],
		Subject:   msg.Subject,
		Message:   msg.Text,
		CreatedAt: r.createdAt(msg),
	}
	r.mu.Lock()
	r.ring[r.next] = rec
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// createdAt is the alert's raise time, or the time it was recorded when the
// message does not carry one.
func (r *Recorder) createdAt(msg Message) time.Time {
	if v, ok := msg.Attributes[AttrRaisedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return r.now().UTC()
}

// Recent returns up to limit records of tenantID, newest first. limit <= 0
// means no limit.
func (r *Recorder) Recent(tenantID string, limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.ring)
	}
	out := []Record{}
	for i := 1; i <= n; i++ {
		rec := r.ring[(r.next-i+len(r.ring))%len(r.ring)]
		if rec.TenantID != tenantID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
