package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/voltmart/storefront/internal/platform/pagination"
	"github.com/voltmart/storefront/internal/repositories"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates the caller could not be identified.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller may not act on the entity.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates a product cannot satisfy the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientCoins indicates a debit larger than the coin balance.
	ErrInsufficientCoins = errors.New("insufficient coins")
	// ErrInvalidCoinUsage indicates a coin redemption beyond the redeemable maximum or order total.
	ErrInvalidCoinUsage = errors.New("invalid coin usage")
	// ErrInvalidReferralCode indicates an unknown or self-referencing referral code.
	ErrInvalidReferralCode = errors.New("invalid referral code")
	// ErrDuplicateReview indicates the reviewer already reviewed the product.
	ErrDuplicateReview = errors.New("duplicate review")
	// ErrNotPurchased indicates the reviewer has no delivered purchase of the product.
	ErrNotPurchased = errors.New("product not purchased")
	// ErrNotEligible indicates the order cannot be returned.
	ErrNotEligible = errors.New("not eligible")
	// ErrSignatureMismatch indicates a payment signature failed verification.
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrConflict indicates optimistic concurrency conflicts or duplicates.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable indicates a backing store is temporarily unavailable.
	ErrUnavailable = errors.New("unavailable")
)

// mapRepositoryError translates typed repository failures into service sentinels. The repository
// error stays in the chain. Context errors and unknown errors are returned unchanged.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		switch ledgerErr.Code {
		case repositories.LedgerErrorInsufficientCoins:
			return fmt.Errorf("%w: %w", ErrInsufficientCoins, err)
		case repositories.LedgerErrorAccountNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case repositories.LedgerErrorInvalidEntry:
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return err
}

// isServiceError reports whether err already carries a service sentinel.
func isServiceError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrUnauthorized, ErrForbidden, ErrInvalidInput, ErrInvalidTransition,
		ErrInsufficientStock, ErrInsufficientCoins, ErrInvalidCoinUsage, ErrInvalidReferralCode,
		ErrDuplicateReview, ErrNotPurchased, ErrNotEligible, ErrSignatureMismatch, ErrConflict,
		ErrUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// mapError maps repository errors while leaving already classified service errors intact.
func mapError(err error) error {
	if err == nil || isServiceError(err) {
		return err
	}
	return mapRepositoryError(err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
