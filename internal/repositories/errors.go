package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock mutations.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the requested quantity exceeds the available stock.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document does not exist.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorInvalidQuantity indicates a negative absolute stock level was requested.
	StockErrorInvalidQuantity StockErrorCode = "stock_invalid_quantity"
)

// StockError wraps stock-specific failures with machine readable codes.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Available int
	Requested int
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, productID, message string) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{Code: code, ProductID: productID, Message: message}
}

// InsufficientStock builds the error returned when stock would go negative.
func InsufficientStock(productID string, available, requested int) *StockError {
	err := NewStockError(StockErrorInsufficient, productID,
		fmt.Sprintf("product %s has %d in stock, %d requested", productID, available, requested))
	err.Available = available
	err.Requested = requested
	return err
}

// LedgerErrorCode enumerates failure reasons for coin ledger writes.
type LedgerErrorCode string

const (
	// LedgerErrorInsufficientCoins indicates a debit larger than the current balance.
	LedgerErrorInsufficientCoins LedgerErrorCode = "ledger_insufficient_coins"
	// LedgerErrorAccountNotFound indicates the user owning the balance does not exist.
	LedgerErrorAccountNotFound LedgerErrorCode = "ledger_account_not_found"
	// LedgerErrorInvalidEntry indicates the entry is malformed (zero amount, missing reference).
	LedgerErrorInvalidEntry LedgerErrorCode = "ledger_invalid_entry"
)

// LedgerError wraps ledger failures with machine readable codes.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	UserID  string
	Balance int64
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewLedgerError constructs a typed ledger error.
func NewLedgerError(code LedgerErrorCode, userID, message string) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{Code: code, UserID: userID, Message: message}
}
