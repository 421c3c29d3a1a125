package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a mutable product attribute.
type Field string

const (
	FieldSKU          Field = "sku"
	FieldName         Field = "name"
	FieldImageURL     Field = "imageUrl"
	FieldPrice        Field = "price"
	FieldStock        Field = "stock"
	FieldThreshold    Field = "threshold"
	FieldLastSoldDate Field = "lastSoldDate"
)

var immutableFields = map[string]bool{
	"tenantId":  true,
	"productId": true,
	"createdAt": true,
}

// Patch is a partial update restricted to the mutable fields. Fields that
// were never set are left untouched by Apply.
type Patch struct {
	set          map[Field]bool
	sku          string
	name         string
	imageURL     *string
	price        decimal.Decimal
	stock        int64
	threshold    int64
	lastSoldDate *time.Time
}

func NewPatch() *Patch { return &Patch{set: make(map[Field]bool)} }

func (p *Patch) mark(f Field) *Patch {
	if p.set == nil {
		p.set = make(map[Field]bool)
	}
	p.set[f] = true
	return p
}

func (p *Patch) SetSKU(v string) *Patch  { p.sku = v; return p.mark(FieldSKU) }
func (p *Patch) SetName(v string) *Patch { p.name = v; return p.mark(FieldName) }

func (p *Patch) SetImageURL(v string) *Patch { p.imageURL = &v; return p.mark(FieldImageURL) }
func (p *Patch) ClearImageURL() *Patch       { p.imageURL = nil; return p.mark(FieldImageURL) }

func (p *Patch) SetPrice(v decimal.Decimal) *Patch { p.price = v; return p.mark(FieldPrice) }
func (p *Patch) SetStock(v int64) *Patch           { p.stock = v; return p.mark(FieldStock) }
func (p *Patch) SetThreshold(v int64) *Patch       { p.threshold = v; return p.mark(FieldThreshold) }

func (p *Patch) SetLastSoldDate(v time.Time) *Patch {
	v = storedTime(v)
	p.lastSoldDate = &v
	return p.mark(FieldLastSoldDate)
}

func (p *Patch) ClearLastSoldDate() *Patch { p.lastSoldDate = nil; return p.mark(FieldLastSoldDate) }

// Has reports whether f is part of the patch.
func (p *Patch) Has(f Field) bool { return p != nil && p.set[f] }

// Len is the number of fields in the patch.
func (p *Patch) Len() int {
	if p == nil {
		return 0
	}
	return len(p.set)
}

// Fields lists the patched fields in name order.
func (p *Patch) Fields() []Field {
	if p == nil {
		return nil
	}
	out := make([]Field, 0, len(p.set))
	for f := range p.set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks the patch against the record invariants.
func (p *Patch) Validate() error {
	if p.Len() == 0 {
		return fmt.Errorf("%w: empty update", ErrBadRequest)
	}
	if p.Has(FieldPrice) && p.price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrBadRequest)
	}
	if p.Has(FieldThreshold) && p.threshold < 0 {
		return fmt.Errorf("%w: threshold must be >= 0", ErrBadRequest)
	}
	return nil
}

// Apply returns rec with every patched field replaced.
func (p *Patch) Apply(rec Product) Product {
	for f := range p.set {
		switch f {
		case FieldSKU:
			rec.SKU = p.sku
		case FieldName:
			rec.Name = p.name
		case FieldImageURL:
			rec.ImageURL = cloneString(p.imageURL)
		case FieldPrice:
			rec.Price = p.price
		case FieldStock:
			rec.Stock = p.stock
		case FieldThreshold:
			rec.Threshold = p.threshold
		case FieldLastSoldDate:
			rec.LastSoldDate = cloneTime(p.lastSoldDate)
		}
	}
	return rec
}

// DecodePatch parses a JSON object of field -> value. Unknown and immutable
// fields are rejected; imageUrl and lastSoldDate accept null to clear them.
func DecodePatch(body []byte) (*Patch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	p := NewPatch()
	for _, name := range names {
		v := raw[name]
		isNull := bytes.Equal(bytes.TrimSpace(v), []byte("null"))
		if immutableFields[name] {
			return nil, fmt.Errorf("%w: field %q is immutable", ErrBadRequest, name)
		}
		switch Field(name) {
		case FieldSKU, FieldName:
			var s string
			if isNull || json.Unmarshal(v, &s) != nil {
				return nil, fieldTypeError(name, "a string")
			}
			if Field(name) == FieldSKU {
				p.SetSKU(s)
			} else {
				p.SetName(s)
			}
		case FieldImageURL:
			if isNull {
				p.ClearImageURL()
				continue
			}
			var s string
			if json.Unmarshal(v, &s) != nil {
				return nil, fieldTypeError(name, "a string or null")
			}
			p.SetImageURL(s)
		case FieldPrice:
			var d decimal.Decimal
			if isNull || d.UnmarshalJSON(v) != nil {
				return nil, fieldTypeError(name, "a number")
			}
			p.SetPrice(d)
		case FieldStock, FieldThreshold:
			var n int64
			if isNull || json.Unmarshal(v, &n) != nil {
				return nil, fieldTypeError(name, "an integer")
			}
			if Field(name) == FieldStock {
				p.SetStock(n)
			} else {
				p.SetThreshold(n)
			}
		case FieldLastSoldDate:
			if isNull {
				p.ClearLastSoldDate()
				continue
			}
			var t time.Time
			if json.Unmarshal(v, &t) != nil {
				return nil, fieldTypeError(name, "an RFC 3339 timestamp or null")
			}
			p.SetLastSoldDate(t)
		default:
			return nil, fmt.Errorf("%w: unknown field %q", ErrBadRequest, name)
		}
	}
	return p, nil
}

func fieldTypeError(name, want string) error {
	return fmt.Errorf("%w: field %q must be %s", ErrBadRequest, name, want)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
