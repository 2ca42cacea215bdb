package pricing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOfferUnavailable signals an offer key that does not exist, is inactive or has expired.
	ErrOfferUnavailable = errors.New("pricing: offer unavailable")
	// ErrInvalidLineItem signals a cart line with a non-positive quantity or negative price.
	ErrInvalidLineItem = errors.New("pricing: invalid line item")
	// ErrDestinationUndeliverable signals that one or more lines cannot ship to the destination.
	ErrDestinationUndeliverable = errors.New("pricing: destination undeliverable")
	// ErrInvalidTaxInput signals a negative taxable amount or rate.
	ErrInvalidTaxInput = errors.New("pricing: invalid tax input")
	// ErrCategoryNotAllowed signals a category or subcategory outside the configured allow-list.
	ErrCategoryNotAllowed = errors.New("pricing: category not allowed")
)

// LineItemError describes which cart line failed validation.
type LineItemError struct {
	ProductID string
	Reason    string
}

// Error implements the error interface.
func (e *LineItemError) Error() string {
	if e == nil {
		return ErrInvalidLineItem.Error()
	}
	return fmt.Sprintf("%s: product %q %s", ErrInvalidLineItem.Error(), e.ProductID, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidLineItem).
func (e *LineItemError) Unwrap() error { return ErrInvalidLineItem }

// UndeliverableError lists the product ids that cannot ship to a destination state.
type UndeliverableError struct {
	State      string
	ProductIDs []string
}

// Error implements the error interface.
func (e *UndeliverableError) Error() string {
	if e == nil {
		return ErrDestinationUndeliverable.Error()
	}
	return fmt.Sprintf("%s: %s cannot ship to %q", ErrDestinationUndeliverable.Error(), strings.Join(e.ProductIDs, ", "), e.State)
}

// Unwrap allows errors.Is(err, ErrDestinationUndeliverable).
func (e *UndeliverableError) Unwrap() error { return ErrDestinationUndeliverable }
