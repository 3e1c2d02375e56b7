package variants

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVariants is returned when an index is built from an empty variant list.
	ErrNoVariants = errors.New("variants: no variants")
	// ErrInvalidAxis is returned when option axes are empty, unnamed or repeat values.
	ErrInvalidAxis = errors.New("variants: invalid option axis")
	// ErrSelectionMismatch is returned when a variant does not pick exactly one declared value per axis.
	ErrSelectionMismatch = errors.New("variants: variant selections do not match axes")
	// ErrUnknownAxis is returned when a selection names an axis the product does not define.
	ErrUnknownAxis = errors.New("variants: unknown axis")
	// ErrUnknownValue is returned when a selection uses a value the axis does not declare.
	ErrUnknownValue = errors.New("variants: unknown axis value")
)

// IssueKind classifies a user-correctable selection problem.
type IssueKind string

const (
	// IssueMissingSelection means an axis has no value yet.
	IssueMissingSelection IssueKind = "missing_selection"
	// IssueUnavailableCombination means a complete selection has no backing variant.
	IssueUnavailableCombination IssueKind = "unavailable_combination"
)

// Issue is a validation result attached to a resolution.
type Issue struct {
	Kind IssueKind
	Axis string
}

// Message renders the issue for display next to the option picker.
func (i Issue) Message() string {
	switch i.Kind {
	case IssueMissingSelection:
		return fmt.Sprintf("Select %s", i.Axis)
	case IssueUnavailableCombination:
		return "This combination is unavailable"
	default:
		return string(i.Kind)
	}
}

// WarningKind classifies data-integrity problems found while building an index.
type WarningKind string

const (
	// WarningDuplicateCombination means two variants share one full combination.
	WarningDuplicateCombination WarningKind = "duplicate_combination"
)

// Warning reports a variant that was left out of the index.
type Warning struct {
	Kind      WarningKind
	VariantID string
	// KeptVariantID is set for duplicate combinations.
	KeptVariantID string
	Detail        string
}

func (w Warning) String() string {
	if w.Kind == WarningDuplicateCombination {
		return fmt.Sprintf("variant %s duplicates combination of %s (%s)", w.VariantID, w.KeptVariantID, w.Detail)
	}
	return fmt.Sprintf("variant %s: %s %s", w.VariantID, w.Kind, w.Detail)
}
