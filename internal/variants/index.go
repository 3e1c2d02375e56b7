package variants

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hanko-field/storefront/internal/domain"
)

const keySeparator = "\x1f"

// Index is an immutable lookup structure over a product's variants.
// It is safe for concurrent readers once built.
type Index struct {
	axes     []domain.OptionAxis
	axisPos  map[string]int
	declared []map[string]struct{}
	variants []domain.Variant

	byFullCombination map[string]int
	// byAxisValue holds ascending variant positions per axis value.
	byAxisValue map[string]map[string][]int
}

// Build indexes the variants against the product's option axes. Every variant
// must pick exactly one declared value per axis or Build fails with
// ErrSelectionMismatch. Later variants repeating an earlier combination are
// left out and reported as warnings.
func Build(variants []domain.Variant, axes []domain.OptionAxis) (*Index, []Warning, error) {
	if len(variants) == 0 {
		return nil, nil, ErrNoVariants
	}
	if len(axes) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one axis is required", ErrInvalidAxis)
	}

	idx := &Index{
		axes:              make([]domain.OptionAxis, len(axes)),
		axisPos:           make(map[string]int, len(axes)),
		declared:          make([]map[string]struct{}, len(axes)),
		byFullCombination: make(map[string]int, len(variants)),
		byAxisValue:       make(map[string]map[string][]int, len(axes)),
	}

	for i, axis := range axes {
		name := strings.TrimSpace(axis.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("%w: axis %d has no name", ErrInvalidAxis, i)
		}
		if _, dup := idx.axisPos[name]; dup {
			return nil, nil, fmt.Errorf("%w: axis %q declared twice", ErrInvalidAxis, name)
		}
		if len(axis.Values) == 0 {
			return nil, nil, fmt.Errorf("%w: axis %q has no values", ErrInvalidAxis, name)
		}
		values := make(map[string]struct{}, len(axis.Values))
		for _, value := range axis.Values {
			if _, dup := values[value]; dup {
				return nil, nil, fmt.Errorf("%w: axis %q repeats value %q", ErrInvalidAxis, name, value)
			}
			values[value] = struct{}{}
		}
		idx.axes[i] = domain.OptionAxis{Name: name, Values: append([]string(nil), axis.Values...)}
		idx.axisPos[name] = i
		idx.declared[i] = values
		idx.byAxisValue[name] = make(map[string][]int, len(axis.Values))
	}

	var warnings []Warning
	for _, variant := range variants {
		key, err := idx.variantKey(variant.Selections)
		if err != nil {
			return nil, warnings, fmt.Errorf("%w: variant %s: %v", ErrSelectionMismatch, variant.ID, err)
		}
		if kept, dup := idx.byFullCombination[key]; dup {
			warnings = append(warnings, Warning{
				Kind:          WarningDuplicateCombination,
				VariantID:     variant.ID,
				KeptVariantID: idx.variants[kept].ID,
				Detail:        strings.ReplaceAll(key, keySeparator, " / "),
			})
			continue
		}

		pos := len(idx.variants)
		idx.variants = append(idx.variants, cloneVariant(variant))
		idx.byFullCombination[key] = pos
		for _, axis := range idx.axes {
			value := variant.Selections[axis.Name]
			idx.byAxisValue[axis.Name][value] = append(idx.byAxisValue[axis.Name][value], pos)
		}
	}

	return idx, warnings, nil
}

// Axes returns the option axes in declaration order.
func (idx *Index) Axes() []domain.OptionAxis {
	out := make([]domain.OptionAxis, len(idx.axes))
	for i, axis := range idx.axes {
		out[i] = domain.OptionAxis{Name: axis.Name, Values: append([]string(nil), axis.Values...)}
	}
	return out
}

// Variants returns the indexed variants in source order.
func (idx *Index) Variants() []domain.Variant {
	out := make([]domain.Variant, len(idx.variants))
	for i, variant := range idx.variants {
		out[i] = cloneVariant(variant)
	}
	return out
}

// Len reports the number of indexed variants.
func (idx *Index) Len() int {
	return len(idx.variants)
}

// HasAxis reports whether the axis is declared.
func (idx *Index) HasAxis(axis string) bool {
	_, ok := idx.axisPos[axis]
	return ok
}

// HasValue reports whether value is declared on axis.
func (idx *Index) HasValue(axis, value string) bool {
	pos, ok := idx.axisPos[axis]
	if !ok {
		return false
	}
	_, ok = idx.declared[pos][value]
	return ok
}

// VariantByID finds an indexed variant by id.
func (idx *Index) VariantByID(id string) (domain.Variant, bool) {
	for _, variant := range idx.variants {
		if variant.ID == id {
			return cloneVariant(variant), true
		}
	}
	return domain.Variant{}, false
}

// VariantsMatching returns the variants agreeing with every entry of partial, in
// source order. Axes absent from partial are unconstrained; an empty partial
// matches every variant. Unknown axes or values match nothing.
func (idx *Index) VariantsMatching(partial domain.Selection) []domain.Variant {
	positions := idx.matchPositions(partial)
	out := make([]domain.Variant, 0, len(positions))
	for _, pos := range positions {
		out = append(out, cloneVariant(idx.variants[pos]))
	}
	return out
}

// Lookup resolves a complete selection to its variant.
func (idx *Index) Lookup(selection domain.Selection) (domain.Variant, bool) {
	pos, ok := idx.lookupPosition(selection)
	if !ok {
		return domain.Variant{}, false
	}
	return cloneVariant(idx.variants[pos]), true
}

func (idx *Index) lookupPosition(selection domain.Selection) (int, bool) {
	parts := make([]string, len(idx.axes))
	for i, axis := range idx.axes {
		value, ok := selection[axis.Name]
		if !ok {
			return 0, false
		}
		parts[i] = value
	}
	pos, ok := idx.byFullCombination[strings.Join(parts, keySeparator)]
	return pos, ok
}

func (idx *Index) matchPositions(partial domain.Selection) []int {
	if len(partial) == 0 {
		all := make([]int, len(idx.variants))
		for i := range all {
			all[i] = i
		}
		return all
	}

	buckets := make([][]int, 0, len(partial))
	for axis, value := range partial {
		values, ok := idx.byAxisValue[axis]
		if !ok {
			return nil
		}
		bucket := values[value]
		if len(bucket) == 0 {
			return nil
		}
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return len(buckets[i]) < len(buckets[j]) })

	result := append([]int(nil), buckets[0]...)
	for _, bucket := range buckets[1:] {
		result = intersectSorted(result, bucket)
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func (idx *Index) variantKey(selections map[string]string) (string, error) {
	if len(selections) != len(idx.axes) {
		return "", fmt.Errorf("expected %d selections, got %d", len(idx.axes), len(selections))
	}
	parts := make([]string, len(idx.axes))
	for i, axis := range idx.axes {
		value, ok := selections[axis.Name]
		if !ok {
			return "", fmt.Errorf("missing value for axis %q", axis.Name)
		}
		if _, declared := idx.declared[i][value]; !declared {
			return "", fmt.Errorf("value %q is not declared on axis %q", value, axis.Name)
		}
		parts[i] = value
	}
	return strings.Join(parts, keySeparator), nil
}

func intersectSorted(a, b []int) []int {
	out := a[:0]
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func cloneVariant(v domain.Variant) domain.Variant {
	dup := v
	if v.Selections != nil {
		dup.Selections = make(map[string]string, len(v.Selections))
		for axis, value := range v.Selections {
			dup.Selections[axis] = value
		}
	}
	if v.CompareAtPrice != nil {
		price := *v.CompareAtPrice
		dup.CompareAtPrice = &price
	}
	return dup
}
