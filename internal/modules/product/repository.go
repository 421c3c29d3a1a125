package product

import (
	"context"
	"iter"
)

// Repository is the multi-tenant item store. Every successful Create, Update,
// Adjust and Delete emits exactly one change on the store's change feed,
// atomically with the mutation.
type Repository interface {
	Get(ctx context.Context, tenantID, productID string) (Product, error)
	// List scans the tenant's partition in product id order. Each range over
	// the returned sequence reads the store again.
	List(ctx context.Context, tenantID string) iter.Seq2[Product, error]
	// Create stores p, assigning ProductID when empty and stamping CreatedAt.
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, tenantID, productID string, patch *Patch) (Product, error)
	// Adjust adds delta to the current stock in one atomic step.
	Adjust(ctx context.Context, tenantID, productID string, delta int64) (Product, error)
	Delete(ctx context.Context, tenantID, productID string) (Product, error)
}
