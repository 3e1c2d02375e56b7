package variants

import (
	"math"

	"github.com/hanko-field/storefront/internal/domain"
)

// Unbounded is the MaxAddable value when stock is not tracked.
const Unbounded = math.MaxInt

// ReasonCode explains why a variant cannot be added to the cart.
type ReasonCode string

const (
	ReasonNone                   ReasonCode = ""
	ReasonOutOfStock             ReasonCode = "out_of_stock"
	ReasonSoldOut                ReasonCode = "sold_out"
	ReasonCartLimitReached       ReasonCode = "cart_limit_reached"
	ReasonMissingSelection       ReasonCode = "missing_selection"
	ReasonUnavailableCombination ReasonCode = "unavailable_combination"
)

// Decision is the purchasability verdict for a variant.
type Decision struct {
	Purchasable bool
	MaxAddable  int
	Reason      ReasonCode
	// InCart is the quantity of the variant already committed to the cart.
	InCart int
}

// Bounded reports whether MaxAddable is a real limit.
func (d Decision) Bounded() bool {
	return d.MaxAddable != Unbounded
}

// Evaluate decides whether requestedQty more units of variant can be added given
// what the cart already holds. It always returns a decision.
func Evaluate(variant domain.Variant, commitment domain.CartCommitment, requestedQty int, inventoryAware bool) Decision {
	inCart := commitment[variant.ID]

	if !inventoryAware {
		decision := Decision{Purchasable: variant.AvailableForSale, MaxAddable: Unbounded, InCart: inCart}
		if !decision.Purchasable {
			decision.Reason = ReasonSoldOut
		}
		return decision
	}

	remaining := variant.QuantityAvailable - inCart
	decision := Decision{
		Purchasable: variant.AvailableForSale && remaining > 0 && requestedQty <= remaining,
		MaxAddable:  max(0, remaining),
		InCart:      inCart,
	}
	switch {
	case decision.Purchasable:
	case !variant.AvailableForSale:
		decision.Reason = ReasonSoldOut
	case variant.QuantityAvailable <= 0:
		decision.Reason = ReasonOutOfStock
	default:
		decision.Reason = ReasonCartLimitReached
	}
	return decision
}

// EvaluateResolution folds selection problems into the decision before
// evaluating the resolved variant.
func EvaluateResolution(res Resolution, commitment domain.CartCommitment, requestedQty int, inventoryAware bool) Decision {
	if !res.Complete() {
		return Decision{Reason: ReasonMissingSelection}
	}
	if res.Unavailable || res.Variant == nil {
		return Decision{Reason: ReasonUnavailableCombination}
	}
	return Evaluate(*res.Variant, commitment, requestedQty, inventoryAware)
}
