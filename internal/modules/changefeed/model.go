// Package changefeed carries before/after snapshots of item mutations from the
// item store to its consumers. Changes are sharded by key; within a shard they
// are delivered in the order the mutations were applied.
package changefeed

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the kind of mutation a change describes.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindModify Kind = "MODIFY"
	KindRemove Kind = "REMOVE"
)

// Key is the composite storage key of an item.
type Key struct {
	Partition string `json:"pk"`
	Sort      string `json:"sk"`
}

func (k Key) String() string { return k.Partition + "|" + k.Sort }

// ShardOf maps a key onto one of n shards.
func ShardOf(k Key, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.String()))
	return int(h.Sum32() % uint32(n))
}

// Change is one mutation of one item. Before is nil for inserts, After is nil
// for removals.
type Change struct {
	Seq    uint64    `json:"seq"`
	Shard  int       `json:"shard"`
	Kind   Kind      `json:"changeKind"`
	Key    Key       `json:"key"`
	Before Image     `json:"before,omitempty"`
	After  Image     `json:"after,omitempty"`
	At     time.Time `json:"at"`
}

// AttributeValue is a tagged attribute. Exactly one of S, N, BOOL or NULL is set.
// Numbers travel as their decimal text so no precision is lost on the wire.
type AttributeValue struct {
	S    *string `json:"S,omitempty"`
	N    *string `json:"N,omitempty"`
	BOOL *bool   `json:"BOOL,omitempty"`
	NULL bool    `json:"NULL,omitempty"`
}

func String(s string) AttributeValue { return AttributeValue{S: &s} }

func Int(n int64) AttributeValue {
	s := strconv.FormatInt(n, 10)
	return AttributeValue{N: &s}
}

func Decimal(d decimal.Decimal) AttributeValue {
	s := d.String()
	return AttributeValue{N: &s}
}

func Bool(b bool) AttributeValue { return AttributeValue{BOOL: &b} }

func Null() AttributeValue { return AttributeValue{NULL: true} }

// Image is an item snapshot keyed by attribute name.
type Image map[string]AttributeValue

// Has reports whether name is present and not NULL.
func (img Image) Has(name string) bool {
	v, ok := img[name]
	return ok && !v.NULL
}

// String returns the attribute as text. Numbers are returned in their decimal
// form; missing or NULL attributes yield "".
func (img Image) String(name string) string {
	v, ok := img[name]
	switch {
	case !ok || v.NULL:
		return ""
	case v.S != nil:
		return *v.S
	case v.N != nil:
		return *v.N
	case v.BOOL != nil:
		return strconv.FormatBool(*v.BOOL)
	}
	return ""
}

// Int coerces the attribute to an integer. Missing or NULL attributes yield 0.
// String-typed numbers are accepted.
func (img Image) Int(name string) (int64, error) {
	d, err := img.Decimal(name)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("attribute %s: %s is not an integer", name, d)
	}
	return d.IntPart(), nil
}

// Decimal coerces the attribute to a decimal. Missing or NULL attributes yield 0.
func (img Image) Decimal(name string) (decimal.Decimal, error) {
	v, ok := img[name]
	if !ok || v.NULL {
		return decimal.Zero, nil
	}
	var raw string
	switch {
	case v.N != nil:
		raw = *v.N
	case v.S != nil:
		raw = *v.S
	case v.BOOL != nil:
		if *v.BOOL {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	default:
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("attribute %s: %w", name, err)
	}
	return d, nil
}

// Time parses an RFC 3339 attribute. Missing, NULL or empty attributes yield nil.
func (img Image) Time(name string) (*time.Time, error) {
	s := img.String(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", name, err)
	}
	return &t, nil
}
