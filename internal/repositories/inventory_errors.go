package repositories

import "fmt"

// InventoryErrorCode enumerates inventory update failures.
type InventoryErrorCode string

const (
	// InventoryErrorProductNotFound indicates a level references an unknown product.
	InventoryErrorProductNotFound InventoryErrorCode = "inventory_product_not_found"
	// InventoryErrorVariantNotFound indicates a level references an unknown variant.
	InventoryErrorVariantNotFound InventoryErrorCode = "inventory_variant_not_found"
)

// InventoryError reports which level of an update could not be applied.
type InventoryError struct {
	Code      InventoryErrorCode
	ProductID string
	VariantID string
	Err       error
}

func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.VariantID != "" {
		return fmt.Sprintf("%s: product %s variant %s", e.Code, e.ProductID, e.VariantID)
	}
	return fmt.Sprintf("%s: product %s", e.Code, e.ProductID)
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound lets services treat inventory misses like other missing documents.
func (e *InventoryError) IsNotFound() bool { return e != nil }

// IsConflict implements RepositoryError.
func (e *InventoryError) IsConflict() bool { return false }

// IsUnavailable implements RepositoryError.
func (e *InventoryError) IsUnavailable() bool { return false }
