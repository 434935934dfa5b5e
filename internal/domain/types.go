package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role identifies the storefront persona of an authenticated principal.
type Role string

const (
	// RoleCustomer buys products and places orders.
	RoleCustomer Role = "customer"
	// RoleSeller owns catalog products and fulfils their line items.
	RoleSeller Role = "seller"
	// RoleAdmin operates the marketplace.
	RoleAdmin Role = "admin"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	// OrderStatusPlaced is the initial state after checkout.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusConfirmed indicates a seller acknowledged the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates payment was verified or the seller started fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the parcel is handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is terminal; the customer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal; stock has been restored.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod enumerates supported checkout payment methods.
type PaymentMethod string

const (
	// PaymentMethodRazorpay is an online gateway payment confirmed by signature verification.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodCOD is cash on delivery; payment is captured on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
)

// Order is the central aggregate of the storefront.
type Order struct {
	ID              string
	UserID          string
	Items           []OrderItem
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentResult   *PaymentResult
	Pricing         OrderPricing
	CoinDiscount    int64
	CoinsUsed       int64
	CoinsEarned     int64
	BonusAttempts   int
	FinalAmount     int64
	IsPaid          bool
	PaidAt          *time.Time
	IsDelivered     bool
	DeliveredAt     *time.Time
	Status          OrderStatus
	StatusHistory   []OrderStatusEntry
	TrackingNumber  string
	Carrier         string
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a snapshot of a purchased product. ProductID is nil when the product was deleted
// or the item never referenced a catalog product (gift items).
type OrderItem struct {
	ProductID      *string
	SellerID       string
	Name           string
	Image          string
	Quantity       int
	UnitPrice      int64
	GiftCouponCode string
}

// LineTotal returns unit price multiplied by quantity.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// HasProduct reports whether the item still references a catalog product.
func (i OrderItem) HasProduct() bool {
	return i.ProductID != nil && *i.ProductID != ""
}

// OrderPricing holds the price breakdown computed at checkout.
type OrderPricing struct {
	ItemsTotal int64
	Tax        int64
	Shipping   int64
	Total      int64
}

// PaymentResult records the gateway order bound at checkout and, once verified, the captured
// payment. Status is "created" until verification succeeds.
type PaymentResult struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Status            string
	UpdatedAt         time.Time
}

// OrderStatusEntry is one append-only status history record.
type OrderStatusEntry struct {
	Status  OrderStatus
	Note    string
	ActorID string
	At      time.Time
}

// Address is the shipping address snapshot stored with an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// LastStatus returns the most recent history entry status, or empty when no history exists.
func (o Order) LastStatus() OrderStatus {
	if len(o.StatusHistory) == 0 {
		return ""
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}

// ContainsProduct reports whether any line item references the product.
func (o Order) ContainsProduct(productID string) bool {
	for _, item := range o.Items {
		if item.HasProduct() && *item.ProductID == productID {
			return true
		}
	}
	return false
}

// HasSeller reports whether any resolvable line item belongs to the seller.
func (o Order) HasSeller(sellerID string) bool {
	if sellerID == "" {
		return false
	}
	for _, item := range o.Items {
		if item.HasProduct() && item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// Product is a catalog entry with stock and review aggregates.
type Product struct {
	ID                string
	SellerID          string
	Name              string
	Image             string
	Category          string
	Subcategory       string
	Price             int64
	Stock             int
	LowStockThreshold int
	Rating            float64
	NumReviews        int
	Reviews           []Review
	SellerReviews     []SellerReview
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Review is a customer's rating of a product.
type Review struct {
	UserID    string
	Name      string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// SellerReview is a seller's rating of a customer who bought the product.
type SellerReview struct {
	SellerID   string
	CustomerID string
	OrderID    string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

// RecomputeRating sets Rating and NumReviews from the embedded reviews.
func (p *Product) RecomputeRating() {
	p.NumReviews = len(p.Reviews)
	if p.NumReviews == 0 {
		p.Rating = 0
		return
	}
	var sum int
	for _, review := range p.Reviews {
		sum += review.Rating
	}
	p.Rating = float64(sum) / float64(p.NumReviews)
}

// User carries the coin balance and referral state of a storefront account.
type User struct {
	ID            string
	Name          string
	Email         string
	Role          Role
	Coins         int64
	TotalEarned   int64
	TotalRedeemed int64
	ReferralCode  string
	ReferredBy    *string
	ReferralStats ReferralStats
	Wishlist      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReferralStats aggregates referral outcomes for a referrer.
type ReferralStats struct {
	TotalReferrals      int
	SuccessfulReferrals int
	TotalEarned         int64
}

// ReferralStatus enumerates referral record states.
type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
	ReferralStatusCancelled ReferralStatus = "cancelled"
)

// Referral links a referred user to the referrer whose code they used.
type Referral struct {
	ID                  string
	ReferrerID          string
	ReferredID          string
	ReferralCode        string
	Status              ReferralStatus
	SignupReward        int64
	OrderReward         int64
	FirstOrderCompleted bool
	TotalRewards        int64
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// ReturnStatus enumerates return workflow states.
type ReturnStatus string

const (
	ReturnStatusRequested  ReturnStatus = "requested"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusProcessing ReturnStatus = "processing"
	ReturnStatusCompleted  ReturnStatus = "completed"
)

// ReturnType enumerates how a return is settled.
type ReturnType string

const (
	ReturnTypeRefund      ReturnType = "refund"
	ReturnTypeExchange    ReturnType = "exchange"
	ReturnTypeStoreCredit ReturnType = "store_credit"
)

// Return is a customer request to send back items of a delivered order.
type Return struct {
	ID            string
	OrderID       string
	UserID        string
	Items         []ReturnItem
	Reason        string
	Type          ReturnType
	Status        ReturnStatus
	RefundAmount  int64
	AdminNotes    string
	StatusHistory []ReturnStatusEntry
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReturnItem is one returned product line.
type ReturnItem struct {
	ProductID string
	Quantity  int
	Price     int64
	Reason    string
	Condition string
}

// ReturnStatusEntry is one append-only return history record.
type ReturnStatusEntry struct {
	Status  ReturnStatus
	Note    string
	ActorID string
	At      time.Time
}

// InventoryAlertType enumerates the stock conditions an alert reports.
type InventoryAlertType string

const (
	InventoryAlertLowStock      InventoryAlertType = "low_stock"
	InventoryAlertOutOfStock    InventoryAlertType = "out_of_stock"
	InventoryAlertRestockNeeded InventoryAlertType = "restock_needed"
)

// InventoryAlert notifies a seller about a product stock condition.
type InventoryAlert struct {
	ID           string
	ProductID    string
	SellerID     string
	Type         InventoryAlertType
	CurrentStock int
	Threshold    int
	Message      string
	IsRead       bool
	IsResolved   bool
	ResolvedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
