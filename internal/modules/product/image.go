package product

import (
	"fmt"
	"time"

	"github.com/georgemunganga/stockwatch/internal/modules/changefeed"
)

// ToImage encodes a product as a tagged change-feed image.
func ToImage(p Product) changefeed.Image {
	k := p.Key()
	img := changefeed.Image{
		"PK":        changefeed.String(k.Partition),
		"SK":        changefeed.String(k.Sort),
		"tenantId":  changefeed.String(p.TenantID),
		"productId": changefeed.String(p.ProductID),
		"sku":       changefeed.String(p.SKU),
		"name":      changefeed.String(p.Name),
		"price":     changefeed.Decimal(p.Price),
		"stock":     changefeed.Int(p.Stock),
		"threshold": changefeed.Int(p.Threshold),
		"createdAt": changefeed.String(p.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}
	if p.ImageURL != nil {
		img["imageUrl"] = changefeed.String(*p.ImageURL)
	} else {
		img["imageUrl"] = changefeed.Null()
	}
	if p.LastSoldDate != nil {
		img["lastSoldDate"] = changefeed.String(p.LastSoldDate.UTC().Format(time.RFC3339Nano))
	} else {
		img["lastSoldDate"] = changefeed.Null()
	}
	return img
}

// FromImage decodes a change-feed image back into a product. Numeric
// attributes are coerced whatever their tag; missing ones read as zero.
func FromImage(img changefeed.Image) (Product, error) {
	p := Product{
		TenantID:  img.String("tenantId"),
		ProductID: img.String("productId"),
		SKU:       img.String("sku"),
		Name:      img.String("name"),
	}
	var err error
	if p.Price, err = img.Decimal("price"); err != nil {
		return Product{}, err
	}
	if p.Stock, err = img.Int("stock"); err != nil {
		return Product{}, err
	}
	if p.Threshold, err = img.Int("threshold"); err != nil {
		return Product{}, err
	}
	if img.Has("imageUrl") {
		u := img.String("imageUrl")
		p.ImageURL = &u
	}
	if p.LastSoldDate, err = img.Time("lastSoldDate"); err != nil {
		return Product{}, err
	}
	created, err := img.Time("createdAt")
	if err != nil {
		return Product{}, err
	}
	if created != nil {
		p.CreatedAt = *created
	}
	if p.TenantID == "" && p.ProductID == "" {
		return Product{}, fmt.Errorf("image has no identity attributes")
	}
	return p, nil
}
