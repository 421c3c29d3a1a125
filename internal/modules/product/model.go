package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrConflict   = errors.New("product already exists")
	ErrBadRequest = errors.New("bad request")
	ErrTransient  = errors.New("store unavailable")
)

const (
	partitionPrefix = "SHOP#"
	sortPrefix      = "PRODUCT#"
)

// PartitionKey is the storage partition that holds every product of a tenant.
func PartitionKey(tenantID string) string { return partitionPrefix + tenantID }

// SortKey locates a product within its tenant's partition.
func SortKey(productID string) string { return sortPrefix + productID }

// KeyOf returns the composite storage key of a product.
func KeyOf(tenantID, productID string) changefeed.Key {
	return changefeed.Key{Partition: PartitionKey(tenantID), Sort: SortKey(productID)}
}

// Product is one inventory record of a shop.
type Product struct {
	TenantID     string          `json:"tenantId"`
	ProductID    string          `json:"productId"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	ImageURL     *string         `json:"imageUrl"`
	Price        decimal.Decimal `json:"price"`
	Stock        int64           `json:"stock"`
	Threshold    int64           `json:"threshold"`
	LastSoldDate *time.Time      `json:"lastSoldDate"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// MarshalJSON writes price as a JSON number, which the dashboard expects.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	return json.Marshal(struct {
		plain
		Price json.Number `json:"price"`
	}{plain(p), json.Number(p.Price.String())})
}

func (p Product) Key() changefeed.Key { return KeyOf(p.TenantID, p.ProductID) }

// AdjustStock returns stock moved by delta, or ErrBadRequest if the result
// does not fit in an int64.
func AdjustStock(stock, delta int64) (int64, error) {
	if (delta > 0 && stock > math.MaxInt64-delta) || (delta < 0 && stock < math.MinInt64-delta) {
		return 0, fmt.Errorf("%w: stock %d adjusted by %d overflows", ErrBadRequest, stock, delta)
	}
	return stock + delta, nil
}

// LowStock reports whether stock is at or below the threshold.
func (p Product) LowStock() bool { return p.Stock <= p.Threshold }

// DisplayName is the name shown in alerts.
func (p Product) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.ProductID != "":
		return p.ProductID
	}
	return "(unknown)"
}

// NewProduct is the caller-supplied part of a product on create. Absent
// numeric fields default to zero, absent optional fields stay null.
type NewProduct struct {
	ProductID    string           `json:"productId,omitempty"`
	SKU          string           `json:"sku,omitempty"`
	Name         string           `json:"name,omitempty"`
	ImageURL     *string          `json:"imageUrl,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Stock        *int64           `json:"stock,omitempty"`
	Threshold    *int64           `json:"threshold,omitempty"`
	LastSoldDate *time.Time       `json:"lastSoldDate,omitempty"`
}

// draft applies the create defaults. ProductID and CreatedAt are left to the store.
func (in NewProduct) draft(tenantID string) Product {
	p := Product{
		TenantID:     tenantID,
		ProductID:    strings.TrimSpace(in.ProductID),
		SKU:          in.SKU,
		Name:         in.Name,
		ImageURL:     in.ImageURL,
		LastSoldDate: in.LastSoldDate,
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Threshold != nil {
		p.Threshold = *in.Threshold
	}
	return p
}
