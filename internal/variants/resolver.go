package variants

import (
	"fmt"

	"github.com/hanko-field/storefront/internal/domain"
)

// ValueAvailability reports whether an axis value can still lead to a variant.
type ValueAvailability struct {
	Value     string
	Reachable bool
}

// AvailabilityMap lists, per axis, every declared value with its reachability
// given the other axes' current picks.
type AvailabilityMap map[string][]ValueAvailability

// Reachable reports whether value is reachable on axis.
func (m AvailabilityMap) Reachable(axis, value string) bool {
	for _, entry := range m[axis] {
		if entry.Value == value {
			return entry.Reachable
		}
	}
	return false
}

// ReachableValues returns the reachable values of axis in declaration order.
func (m AvailabilityMap) ReachableValues(axis string) []string {
	var out []string
	for _, entry := range m[axis] {
		if entry.Reachable {
			out = append(out, entry.Value)
		}
	}
	return out
}

// Resolution is the outcome of applying a selection to an index.
type Resolution struct {
	Selection    domain.Selection
	Availability AvailabilityMap
	// Variant is nil unless the selection is complete and backed by a variant.
	Variant     *domain.Variant
	Unavailable bool
	Issues      []Issue
}

// Complete reports whether every axis has a value.
func (r Resolution) Complete() bool {
	for _, issue := range r.Issues {
		if issue.Kind == IssueMissingSelection {
			return false
		}
	}
	return true
}

// MissingAxes lists axes still waiting for a value.
func (r Resolution) MissingAxes() []string {
	var out []string
	for _, issue := range r.Issues {
		if issue.Kind == IssueMissingSelection {
			out = append(out, issue.Axis)
		}
	}
	return out
}

// Resolver computes selections against one product's index.
type Resolver struct {
	index          *Index
	inventoryAware bool
}

// NewResolver binds a resolver to an index. When inventoryAware is set only
// variants with stock count as reachable.
func NewResolver(index *Index, inventoryAware bool) *Resolver {
	return &Resolver{index: index, inventoryAware: inventoryAware}
}

// Index returns the index the resolver reads from.
func (r *Resolver) Index() *Index {
	return r.index
}

// InventoryAware reports whether stock is taken into account.
func (r *Resolver) InventoryAware() bool {
	return r.inventoryAware
}

// InitialSelection seeds a selection from the first in-stock variant, or the first
// variant when stock is ignored or nothing is in stock.
func (r *Resolver) InitialSelection() domain.Selection {
	if r == nil || r.index == nil || len(r.index.variants) == 0 {
		return domain.Selection{}
	}
	seed := r.index.variants[0]
	if r.inventoryAware {
		for _, variant := range r.index.variants {
			if variant.QuantityAvailable > 0 {
				seed = variant
				break
			}
		}
	}
	selection := make(domain.Selection, len(r.index.axes))
	for _, axis := range r.index.axes {
		selection[axis.Name] = seed.Selections[axis.Name]
	}
	return selection
}

// Apply sets axis to value on a copy of current and resolves the result. Only
// undeclared axes or values are errors; unreachable values are accepted.
func (r *Resolver) Apply(current domain.Selection, axis, value string) (Resolution, error) {
	if r == nil || r.index == nil {
		return Resolution{}, ErrNoVariants
	}
	if !r.index.HasAxis(axis) {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
	}
	if !r.index.HasValue(axis, value) {
		return Resolution{}, fmt.Errorf("%w: %q on axis %q", ErrUnknownValue, value, axis)
	}

	next := r.normalise(current)
	next[axis] = value
	return r.resolve(next), nil
}

// Resolve evaluates current without changing it.
func (r *Resolver) Resolve(current domain.Selection) Resolution {
	if r == nil || r.index == nil {
		return Resolution{Selection: domain.Selection{}}
	}
	return r.resolve(r.normalise(current))
}

func (r *Resolver) resolve(selection domain.Selection) Resolution {
	res := Resolution{
		Selection:    selection,
		Availability: r.availability(selection),
	}

	for _, axis := range r.index.axes {
		if _, ok := selection[axis.Name]; !ok {
			res.Issues = append(res.Issues, Issue{Kind: IssueMissingSelection, Axis: axis.Name})
		}
	}
	if len(res.Issues) > 0 {
		return res
	}

	if pos, ok := r.index.lookupPosition(selection); ok {
		variant := cloneVariant(r.index.variants[pos])
		res.Variant = &variant
		return res
	}
	res.Unavailable = true
	res.Issues = append(res.Issues, Issue{Kind: IssueUnavailableCombination})
	return res
}

// availability marks, for each axis, the values reachable from the picks on every
// other axis. An axis' own pick never constrains itself.
func (r *Resolver) availability(selection domain.Selection) AvailabilityMap {
	out := make(AvailabilityMap, len(r.index.axes))
	for _, axis := range r.index.axes {
		others := make(domain.Selection, len(selection))
		for name, value := range selection {
			if name != axis.Name {
				others[name] = value
			}
		}

		reachable := make(map[string]bool, len(axis.Values))
		for _, pos := range r.index.matchPositions(others) {
			variant := r.index.variants[pos]
			if r.inventoryAware && variant.QuantityAvailable <= 0 {
				continue
			}
			reachable[variant.Selections[axis.Name]] = true
		}

		entries := make([]ValueAvailability, len(axis.Values))
		for i, value := range axis.Values {
			entries[i] = ValueAvailability{Value: value, Reachable: reachable[value]}
		}
		out[axis.Name] = entries
	}
	return out
}

// normalise copies current, dropping entries the index does not declare.
func (r *Resolver) normalise(current domain.Selection) domain.Selection {
	out := make(domain.Selection, len(r.index.axes))
	for axis, value := range current {
		if r.index.HasValue(axis, value) {
			out[axis] = value
		}
	}
	return out
}
