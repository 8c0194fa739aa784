package collection

import (
	"fmt"
	"strings"
)

// Extractor derives a string from an entity: the master key, or the value an
// index files the entity under. It must be pure and cheap; it runs several
// times per operation. An index extractor returning "" leaves the entity out
// of that index.
type Extractor[T any] func(T) string

// Cardinality says how many entities an indexed value may map to.
type Cardinality int

const (
	Unique Cardinality = iota + 1 // one entity per value, stored as a hash field
	Multi                         // many entities per value, stored as a set per value
)

func (c Cardinality) String() string {
	switch c {
	case Unique:
		return "unique"
	case Multi:
		return "lookup"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// Encoding says what an index entry holds.
type Encoding int

const (
	KeyOnly Encoding = iota + 1 // the master key; reads go back to the master hash
	Payload                     // the serialized entity itself
)

func (e Encoding) String() string {
	switch e {
	case KeyOnly:
		return "key-only"
	case Payload:
		return "payload"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Definition declares one secondary index. Name identifies the index at
// lookup time (case-insensitively) and names its storage keys.
type Definition[T any] struct {
	Name        string
	Extract     Extractor[T]
	Cardinality Cardinality
	Encoding    Encoding
}

// UniqueIndex declares a key-only index with at most one entity per value.
func UniqueIndex[T any](name string, extract func(T) string) Definition[T] {
	return Definition[T]{Name: name, Extract: extract, Cardinality: Unique, Encoding: KeyOnly}
}

// LookupIndex declares a key-only index mapping a value to many entities.
func LookupIndex[T any](name string, extract func(T) string) Definition[T] {
	return Definition[T]{Name: name, Extract: extract, Cardinality: Multi, Encoding: KeyOnly}
}

// WithPayload returns a copy of d that stores serialized entities instead of
// master keys.
func (d Definition[T]) WithPayload() Definition[T] {
	d.Encoding = Payload
	return d
}

func (d Definition[T]) validate() error {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrIndexName)
	case name == masterSuffix:
		return fmt.Errorf("%w: %q is reserved for the master hash", ErrIndexName, d.Name)
	case strings.ContainsAny(name, "[]"):
		return fmt.Errorf("%w: %q contains brackets", ErrIndexName, d.Name)
	}
	if d.Extract == nil {
		return fmt.Errorf("index %q: %w", d.Name, ErrNoExtractor)
	}
	if d.Cardinality != Unique && d.Cardinality != Multi {
		return fmt.Errorf("index %q: %w: %v", d.Name, ErrUnsupportedIndex, d.Cardinality)
	}
	if d.Encoding != KeyOnly && d.Encoding != Payload {
		return fmt.Errorf("index %q: %w: %v", d.Name, ErrUnsupportedIndex, d.Encoding)
	}
	return nil
}
