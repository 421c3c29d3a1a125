package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/tenant"
	"github.com/go-chi/chi/v5"
)

func alertMessage(tenantID, productID, text string) Message {
	return Message{
		Subject:    "Low stock alert",
		Text:       text,
		Attributes: map[string]string{AttrTenant: tenantID, AttrProduct: productID},
	}
}

func TestBrokerFansOutAndJoinsErrors(t *testing.T) {
	b := NewBroker()
	var got []string
	ok := PublisherFunc(func(_ context.Context, m Message) error {
		got = append(got, m.Text)
		return nil
	})
	boom := errors.New("boom")
	bad := PublisherFunc(func(context.Context, Message) error { return boom })

	if err := b.Subscribe("first", ok); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("bad", bad); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("last", ok); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe("last", ok); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}

	err := b.Publish(context.Background(), Message{Text: "hello"})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected joined error naming the subscriber, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("healthy subscribers should both receive the message, got %v", got)
	}
	if names := b.Subscribers(); fmt.Sprint(names) != "[first bad last]" {
		t.Fatalf("unexpected subscribers: %v", names)
	}
}

func TestBrokerWithoutSubscribers(t *testing.T) {
	if err := NewBroker().Publish(context.Background(), Message{}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWebhookPostsJSON(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request: %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	msg := alertMessage("S1", "P1", "Low stock alert for Mug: current stock 2 (threshold 5).")
	if err := NewWebhook(srv.URL, time.Second).Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if received.Text != msg.Text || received.Attributes[AttrProduct] != "P1" {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestWebhookNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	err := NewWebhook(srv.URL, time.Second).Publish(context.Background(), Message{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestWebhookHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := NewWebhook(srv.URL, time.Minute).Publish(ctx, Message{}); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestRecorderRingNewestFirstPerTenant(t *testing.T) {
	r := NewRecorder(3)
	seq := 0
	r.newID = func() string { seq++; return fmt.Sprintf("a%d", seq) }
	ctx := context.Background()
	_ = r.Publish(ctx, alertMessage("S1", "P1", "one"))
	_ = r.Publish(ctx, alertMessage("S2", "P9", "other"))
	_ = r.Publish(ctx, alertMessage("S1", "P2", "two"))
	_ = r.Publish(ctx, alertMessage("S1", "P3", "three"))

	got := r.Recent("S1", 0)
	var texts []string
	for _, rec := range got {
		texts = append(texts, rec.Message)
	}
	// capacity 3 evicted "one"
	if fmt.Sprint(texts) != "[three two]" {
		t.Fatalf("unexpected records: %v", texts)
	}
	if got := r.Recent("S1", 1); len(got) != 1 || got[0].ProductID != "P3" {
		t.Fatalf("limit not applied: %+v", got)
	}
	if got := r.Recent("nobody", 0); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRecorderUsesRaisedAt(t *testing.T) {
	r := NewRecorder(5)
	recorded := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return recorded }
	ctx := context.Background()

	msg := alertMessage("S1", "P1", "raised earlier")
	msg.Attributes[AttrRaisedAt] = "2026-05-01T10:30:00.5+02:00"
	_ = r.Publish(ctx, msg)
	_ = r.Publish(ctx, alertMessage("S1", "P2", "no raise time"))

	got := r.Recent("S1", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}
	if want := time.Date(2026, 5, 1, 8, 30, 0, 500000000, time.UTC); !got[1].CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want raise time %v", got[1].CreatedAt, want)
	}
	if !got[0].CreatedAt.Equal(recorded) {
		t.Fatalf("createdAt = %v, want recorder clock %v", got[0].CreatedAt, recorded)
	}
}

func TestAlertsEndpointIsTenantScoped(t *testing.T) {
	rec := NewRecorder(10)
	_ = rec.Publish(context.Background(), alertMessage("S1", "P1", "mine"))
	_ = rec.Publish(context.Background(), alertMessage("S2", "P2", "theirs"))

	r := chi.NewRouter()
	NewHandler(rec, tenant.Resolver{Header: "X-Shop-Id"}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("X-Shop-Id", "S1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []Record
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Message != "mine" || got[0].ID == "" {
		t.Fatalf("unexpected alerts: %+v", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alerts", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without tenant, got %d", w.Code)
	}
}
