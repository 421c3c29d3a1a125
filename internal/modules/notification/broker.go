package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type subscription struct {
	name string
	pub  Publisher
}

// Broker fans each message out to every subscriber in registration order.
// A failing subscriber does not stop delivery to the others.
type Broker struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewBroker() *Broker { return &Broker{} }

// Subscribe registers pub under name. Names must be unique.
func (b *Broker) Subscribe(name string, pub Publisher) error {
	if pub == nil {
		return fmt.Errorf("subscriber %q is nil", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.name == name {
			return fmt.Errorf("subscriber %q already registered", name)
		}
	}
	b.subs = append(b.subs, subscription{name: name, pub: pub})
	return nil
}

// Subscribers returns the registered names.
func (b *Broker) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.name
	}
	return names
}

// Publish delivers msg to every subscriber and joins their errors.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.pub.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
