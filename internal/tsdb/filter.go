package tsdb

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Predicate is one equality clause. Key is KeyMeasurement, KeyField or a tag name.
type Predicate struct {
	Key   string
	Value string
}

// Filter is a backend-neutral query: a lookback lower bound plus an
// ordered list of equality predicates joined with AND.
type Filter struct {
	Lookback   time.Duration
	Predicates []Predicate
	// Last asks the backend for the most recent matching row only.
	Last bool
}

func (f Filter) Value(key string) (string, bool) {
	for _, p := range f.Predicates {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

var identRe = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// ValidIdentifier reports whether v is safe to use as a tag value or key.
func ValidIdentifier(v string) bool {
	return identRe.MatchString(v)
}

// Builder assembles a Filter in a fixed predicate order so that the same
// inputs always render the same expression.
type Builder struct {
	f   Filter
	err error
}

func Select(measurement string) *Builder {
	b := &Builder{}
	return b.add(KeyMeasurement, measurement)
}

func (b *Builder) Field(name string) *Builder {
	return b.add(KeyField, name)
}

func (b *Builder) Tag(key, value string) *Builder {
	if b.err == nil && !ValidIdentifier(key) {
		b.err = fmt.Errorf("%w: tag key %q", domain.ErrInvalidIdentifier, key)
	}
	return b.add(key, value)
}

// TagIf adds the clause only when value is non-empty.
func (b *Builder) TagIf(key, value string) *Builder {
	if value == "" {
		return b
	}
	return b.Tag(key, value)
}

func (b *Builder) Since(lookback time.Duration) *Builder {
	b.f.Lookback = lookback
	return b
}

func (b *Builder) Last() *Builder {
	b.f.Last = true
	return b
}

func (b *Builder) Build() (Filter, error) {
	if b.err != nil {
		return Filter{}, b.err
	}
	if b.f.Lookback <= 0 {
		return Filter{}, fmt.Errorf("filter lookback must be positive, got %s", b.f.Lookback)
	}
	out := b.f
	out.Predicates = append([]Predicate(nil), b.f.Predicates...)
	return out, nil
}

func (b *Builder) add(key, value string) *Builder {
	if b.err == nil && !ValidIdentifier(value) {
		b.err = fmt.Errorf("%w: %s=%q", domain.ErrInvalidIdentifier, key, value)
	}
	b.f.Predicates = append(b.f.Predicates, Predicate{Key: key, Value: value})
	return b
}
