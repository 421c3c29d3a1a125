package product

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/google/uuid"
)

// prepare validates a new record and fills the store-assigned fields.
func prepare(p Product, newID func() string, now func() time.Time) (Product, error) {
	if p.TenantID == "" {
		return Product{}, fmt.Errorf("%w: tenant is required", ErrBadRequest)
	}
	if p.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrBadRequest)
	}
	if p.Threshold < 0 {
		return Product{}, fmt.Errorf("%w: threshold must be >= 0", ErrBadRequest)
	}
	if p.ProductID == "" {
		p.ProductID = newID()
	}
	if strings.Contains(p.ProductID, "/") {
		return Product{}, fmt.Errorf("%w: productId must not contain '/'", ErrBadRequest)
	}
	p.CreatedAt = storedTime(now())
	p.ImageURL = cloneString(p.ImageURL)
	if p.LastSoldDate != nil {
		t := storedTime(*p.LastSoldDate)
		p.LastSoldDate = &t
	}
	return p, nil
}

// storedTime is t as every backend stores it: UTC at microsecond precision.
func storedTime(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

// MemoryStore keeps products in process memory. Partitions map a tenant's
// partition key to its products by sort key.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Product
	feed       *changefeed.Log
	newID      func() string
	now        func() time.Time
}

// NewMemoryStore creates a store that appends its changes to feed.
func NewMemoryStore(feed *changefeed.Log) *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string]Product),
		feed:       feed,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, productID string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[PartitionKey(tenantID)][SortKey(productID)]
	if !ok {
		return Product{}, ErrNotFound
	}
	return copyProduct(p), nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string) iter.Seq2[Product, error] {
	return func(yield func(Product, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Product{}, err)
			return
		}
		s.mu.RLock()
		part := s.partitions[PartitionKey(tenantID)]
		keys := make([]string, 0, len(part))
		for sk := range part {
			if strings.HasPrefix(sk, sortPrefix) {
				keys = append(keys, sk)
			}
		}
		sort.Strings(keys)
		snapshot := make([]Product, len(keys))
		for i, sk := range keys {
			snapshot[i] = copyProduct(part[sk])
		}
		s.mu.RUnlock()

		for _, p := range snapshot {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (s *MemoryStore) Create(ctx context.Context, p Product) (Product, error) {
	p, err := prepare(p, s.newID, s.now)
	if err != nil {
		return Product{}, err
	}
	k := p.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	part, ok := s.partitions[k.Partition]
	if !ok {
		part = make(map[string]Product)
		s.partitions[k.Partition] = part
	}
	if _, exists := part[k.Sort]; exists {
		return Product{}, fmt.Errorf("%w: %s", ErrConflict, p.ProductID)
	}
	part[k.Sort] = p
	s.feed.Append(changefeed.KindInsert, k, nil, ToImage(p))
	return copyProduct(p), nil
}

func (s *MemoryStore) Update(ctx context.Context, tenantID, productID string, patch *Patch) (Product, error) {
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}
	return s.modify(tenantID, productID, func(p Product) (Product, error) {
		return patch.Apply(p), nil
	})
}

func (s *MemoryStore) Adjust(ctx context.Context, tenantID, productID string, delta int64) (Product, error) {
	return s.modify(tenantID, productID, func(p Product) (Product, error) {
		stock, err := AdjustStock(p.Stock, delta)
		if err != nil {
			return Product{}, err
		}
		p.Stock = stock
		return p, nil
	})
}

// modify applies fn to the stored record and emits the change under one lock.
func (s *MemoryStore) modify(tenantID, productID string, fn func(Product) (Product, error)) (Product, error) {
	k := KeyOf(tenantID, productID)
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok := s.partitions[k.Partition][k.Sort]
	if !ok {
		return Product{}, ErrNotFound
	}
	after, err := fn(copyProduct(before))
	if err != nil {
		return Product{}, err
	}
	s.partitions[k.Partition][k.Sort] = after
	s.feed.Append(changefeed.KindModify, k, ToImage(before), ToImage(after))
	return copyProduct(after), nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, productID string) (Product, error) {
	k := KeyOf(tenantID, productID)
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.partitions[k.Partition]
	before, ok := part[k.Sort]
	if !ok {
		return Product{}, ErrNotFound
	}
	delete(part, k.Sort)
	if len(part) == 0 {
		delete(s.partitions, k.Partition)
	}
	s.feed.Append(changefeed.KindRemove, k, ToImage(before), nil)
	return copyProduct(before), nil
}

func copyProduct(p Product) Product {
	p.ImageURL = cloneString(p.ImageURL)
	p.LastSoldDate = cloneTime(p.LastSoldDate)
	return p
}
