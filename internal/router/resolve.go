package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
	"github.com/Yuanja/watch-tracker-sub000/internal/service"
)

// lookup is one strategy in an ordered resolution chain. It returns the
// resolved id and whether it matched.
type lookup func(name string) (int64, bool)

// resolver matches free-form extracted names against reference data.
// Every reference resolves through an ordered chain of lookups that
// short-circuits on the first hit; a miss anywhere leaves the field null.
type resolver struct {
	categories    []model.Category
	manufacturers []model.Manufacturer
	units         []model.Unit
	conditions    []model.Condition
}

// newResolver loads the full reference lists once per message. The tables
// are small and read-mostly, so a linear scan per item is fine.
func newResolver(ctx context.Context, store service.Storage) (*resolver, error) {
	categories, err := store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	manufacturers, err := store.GetManufacturers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load manufacturers: %w", err)
	}
	units, err := store.GetUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	conditions, err := store.GetConditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions: %w", err)
	}

	return &resolver{
		categories:    categories,
		manufacturers: manufacturers,
		units:         units,
		conditions:    conditions,
	}, nil
}

// resolve runs a chain of lookups against a free-form name and returns the
// first hit, or nil when nothing matches.
func resolve(name string, chain ...lookup) *int64 {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	for _, strategy := range chain {
		if id, ok := strategy(name); ok {
			return &id
		}
	}
	return nil
}

// Category resolves by exact case-insensitive name only.
func (r *resolver) Category(name string) *int64 {
	return resolve(name, func(n string) (int64, bool) {
		for _, c := range r.categories {
			if strings.EqualFold(c.Name, n) {
				return c.ID, true
			}
		}
		return 0, false
	})
}

// Manufacturer resolves by exact name, then by alias scan.
func (r *resolver) Manufacturer(name string) *int64 {
	return resolve(name,
		func(n string) (int64, bool) {
			for _, m := range r.manufacturers {
				if strings.EqualFold(m.Name, n) {
					return m.ID, true
				}
			}
			return 0, false
		},
		func(n string) (int64, bool) {
			for _, m := range r.manufacturers {
				for _, alias := range m.Aliases {
					if strings.EqualFold(alias, n) {
						return m.ID, true
					}
				}
			}
			return 0, false
		},
	)
}

// Unit resolves by exact name, then by abbreviation.
func (r *resolver) Unit(name string) *int64 {
	return resolve(name,
		func(n string) (int64, bool) {
			for _, u := range r.units {
				if strings.EqualFold(u.Name, n) {
					return u.ID, true
				}
			}
			return 0, false
		},
		func(n string) (int64, bool) {
			for _, u := range r.units {
				if u.Abbrev != "" && strings.EqualFold(u.Abbrev, n) {
					return u.ID, true
				}
			}
			return 0, false
		},
	)
}

// Condition resolves by exact name, then abbreviation, then a
// substring-contains scan against active condition names. The substring pass
// catches phrasings like "new old stock, sealed box".
func (r *resolver) Condition(name string) *int64 {
	return resolve(name,
		func(n string) (int64, bool) {
			for _, c := range r.conditions {
				if strings.EqualFold(c.Name, n) {
					return c.ID, true
				}
			}
			return 0, false
		},
		func(n string) (int64, bool) {
			for _, c := range r.conditions {
				if c.Abbrev != "" && strings.EqualFold(c.Abbrev, n) {
					return c.ID, true
				}
			}
			return 0, false
		},
		func(n string) (int64, bool) {
			for _, c := range r.conditions {
				if !c.Active {
					continue
				}
				lower := strings.ToLower(c.Name)
				if strings.Contains(n, lower) || strings.Contains(lower, n) {
					return c.ID, true
				}
			}
			return 0, false
		},
	)
}
