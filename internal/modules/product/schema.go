package product

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

// patchDocument documents the body PATCH /products/{id} accepts. DecodePatch
// enforces the same allow-list.
type patchDocument struct {
	SKU          *string          `json:"sku,omitempty"`
	Name         *string          `json:"name,omitempty"`
	ImageURL     *string          `json:"imageUrl,omitempty" jsonschema:"description=null clears the image"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Stock        *int64           `json:"stock,omitempty"`
	Threshold    *int64           `json:"threshold,omitempty" jsonschema:"minimum=0"`
	LastSoldDate *time.Time       `json:"lastSoldDate,omitempty" jsonschema:"description=null clears the date"`
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func schemaReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "number"}
			}
			return nil
		},
	}
}

// buildSchemas renders the JSON schemas served under /schema/{name}.
func buildSchemas() map[string][]byte {
	r := schemaReflector()
	docs := map[string]any{
		"product":     r.Reflect(&Product{}),
		"new-product": r.Reflect(&NewProduct{}),
		"patch":       r.Reflect(&patchDocument{}),
	}
	out := make(map[string][]byte, len(docs))
	for name, s := range docs {
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			continue
		}
		out[name] = b
	}
	return out
}
