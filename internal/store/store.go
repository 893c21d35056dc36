// Package store defines the narrow keyed-record contract the game core runs
// against: get/create/update/list over named collections plus a realtime
// change feed. Documents are replaced last-writer-wins; there is no
// compare-and-swap primitive.
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Event struct {
	Action Action
	Record Record
}

// Record is one stored document. Fields is a flat map; nested documents are
// stored as JSON-compatible values under a single field.
type Record struct {
	ID      string
	Created time.Time
	Updated time.Time
	Fields  map[string]any
}

func (r Record) String(key string) string {
	value, _ := r.Fields[key].(string)
	return value
}

func (r Record) Int(key string) int {
	switch value := r.Fields[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	}
	return 0
}

func (r Record) Bool(key string) bool {
	value, _ := r.Fields[key].(bool)
	return value
}

func (r Record) Time(key string) time.Time {
	value, _ := r.Fields[key].(time.Time)
	return value
}

type op int

const (
	opEq op = iota
	opGt
	opNotEmpty
)

// Cond is one predicate of an AND filter.
type Cond struct {
	field string
	op    op
	value any
}

// Eq matches records whose field equals value.
func Eq(field string, value any) Cond {
	return Cond{field: field, op: opEq, value: value}
}

// Gt matches records whose numeric field is strictly greater than value.
func Gt(field string, value int) Cond {
	return Cond{field: field, op: opGt, value: value}
}

// NotEmpty matches records whose field is a non-empty string.
func NotEmpty(field string) Cond {
	return Cond{field: field, op: opNotEmpty}
}

// Client is the store surface the core components depend on. Update merges
// the given fields into the record and replaces the document.
type Client interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Create(ctx context.Context, collection string, fields map[string]any) (Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (Record, error)
	List(ctx context.Context, collection string, conds ...Cond) ([]Record, error)
	Delete(ctx context.Context, collection, id string) error
	Subscribe(collection string, fn func(Event)) func()
}

// NewRecordID returns a random hex identifier.
func NewRecordID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("rec-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", buf)
}
