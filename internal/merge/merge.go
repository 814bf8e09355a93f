// Package merge reconciles one entity collection between two datasets.
//
// A merge is additive: rows only in the source are created in the target,
// rows in both are replaced when the source copy is strictly newer, and rows
// only in the target are left alone. Records are copied whole, tombstones and
// hidden markers included.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/atinyakov/BudgetKeeper/internal/dataset"
)

// Capabilities binds the generic merge to one entity type T identified by K.
type Capabilities[T any, K comparable] struct {
	Entity     string
	ReadAll    func(ctx context.Context, ds dataset.Dataset) ([]T, error)
	Create     func(ctx context.Context, ds dataset.Dataset, v T) error
	Update     func(ctx context.Context, ds dataset.Dataset, v T) error
	KeyOf      func(v T) K
	ModifiedOf func(v T) time.Time
}

// Stats counts what a merge did to the target.
type Stats struct {
	Entity    string
	Created   int
	Updated   int
	Unchanged int
}

// Writes returns Created + Updated.
func (s Stats) Writes() int { return s.Created + s.Updated }

// index maps keys to rows. A key repeated within one side keeps its last row;
// order keeps the first position each key was seen at.
type index[T any, K comparable] struct {
	rows  map[K]T
	order []K
}

func newIndex[T any, K comparable](rows []T, keyOf func(T) K) index[T, K] {
	idx := index[T, K]{rows: make(map[K]T, len(rows))}
	for _, r := range rows {
		k := keyOf(r)
		if _, seen := idx.rows[k]; !seen {
			idx.order = append(idx.order, k)
		}
		idx.rows[k] = r
	}
	return idx
}

// Merge copies source rows into target. The first failing read or write stops
// the merge; writes already applied stay applied.
func Merge[T any, K comparable](ctx context.Context, c Capabilities[T, K], source, target dataset.Dataset) (Stats, error) {
	stats := Stats{Entity: c.Entity}

	srcRows, err := c.ReadAll(ctx, source)
	if err != nil {
		return stats, fmt.Errorf("%s: read source: %w", c.Entity, err)
	}
	dstRows, err := c.ReadAll(ctx, target)
	if err != nil {
		return stats, fmt.Errorf("%s: read target: %w", c.Entity, err)
	}

	src := newIndex(srcRows, c.KeyOf)
	dst := newIndex(dstRows, c.KeyOf)

	for _, k := range src.order {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("%s: %w", c.Entity, err)
		}
		s := src.rows[k]
		d, exists := dst.rows[k]
		switch {
		case !exists:
			if err := c.Create(ctx, target, s); err != nil {
				return stats, fmt.Errorf("%s: create %v: %w", c.Entity, k, err)
			}
			stats.Created++
		case c.ModifiedOf(s).After(c.ModifiedOf(d)):
			if err := c.Update(ctx, target, s); err != nil {
				return stats, fmt.Errorf("%s: update %v: %w", c.Entity, k, err)
			}
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}
