package handlers

import (
	"github.com/voltmart/storefront/internal/domain"
	"github.com/voltmart/storefront/internal/services"
)

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type orderItemPayload struct {
	ProductID      *string `json:"product_id"`
	SellerID       string  `json:"seller_id,omitempty"`
	Name           string  `json:"name"`
	Image          string  `json:"image,omitempty"`
	Quantity       int     `json:"quantity"`
	UnitPrice      int64   `json:"unit_price"`
	GiftCouponCode string  `json:"gift_coupon_code,omitempty"`
}

type orderPricingPayload struct {
	ItemsTotal int64 `json:"items_total"`
	Tax        int64 `json:"tax"`
	Shipping   int64 `json:"shipping"`
	Total      int64 `json:"total"`
}

type paymentResultPayload struct {
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
	UpdatedAt         string `json:"updated_at"`
}

type statusEntryPayload struct {
	Status  string `json:"status"`
	Note    string `json:"note,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
	At      string `json:"at"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	UserID          string                `json:"user_id"`
	Status          string                `json:"status"`
	Items           []orderItemPayload    `json:"items"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
	PaymentResult   *paymentResultPayload `json:"payment_result,omitempty"`
	Pricing         orderPricingPayload   `json:"pricing"`
	CoinDiscount    int64                 `json:"coin_discount"`
	CoinsUsed       int64                 `json:"coins_used"`
	CoinsEarned     int64                 `json:"coins_earned"`
	FinalAmount     int64                 `json:"final_amount"`
	IsPaid          bool                  `json:"is_paid"`
	PaidAt          string                `json:"paid_at,omitempty"`
	IsDelivered     bool                  `json:"is_delivered"`
	DeliveredAt     string                `json:"delivered_at,omitempty"`
	TrackingNumber  string                `json:"tracking_number,omitempty"`
	Carrier         string                `json:"carrier,omitempty"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
	StatusHistory   []statusEntryPayload  `json:"status_history"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		PaymentMethod:   string(order.PaymentMethod),
		Pricing: orderPricingPayload{
			ItemsTotal: order.Pricing.ItemsTotal,
			Tax:        order.Pricing.Tax,
			Shipping:   order.Pricing.Shipping,
			Total:      order.Pricing.Total,
		},
		CoinDiscount:   order.CoinDiscount,
		CoinsUsed:      order.CoinsUsed,
		CoinsEarned:    order.CoinsEarned,
		FinalAmount:    order.FinalAmount,
		IsPaid:         order.IsPaid,
		PaidAt:         formatTimePtr(order.PaidAt),
		IsDelivered:    order.IsDelivered,
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
		TrackingNumber: order.TrackingNumber,
		Carrier:        order.Carrier,
		CancelReason:   order.CancelReason,
		StatusHistory:  make([]statusEntryPayload, 0, len(order.StatusHistory)),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:      item.ProductID,
			SellerID:       item.SellerID,
			Name:           item.Name,
			Image:          item.Image,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			GiftCouponCode: item.GiftCouponCode,
		})
	}
	if pr := order.PaymentResult; pr != nil {
		payload.PaymentResult = &paymentResultPayload{
			ProviderOrderID:   pr.ProviderOrderID,
			ProviderPaymentID: pr.ProviderPaymentID,
			Status:            pr.Status,
			UpdatedAt:         formatTime(pr.UpdatedAt),
		}
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:  string(entry.Status),
			Note:    entry.Note,
			ActorID: entry.ActorID,
			At:      formatTime(entry.At),
		})
	}
	return payload
}

type returnItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Reason    string `json:"reason,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type returnPayload struct {
	ID            string               `json:"id"`
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	Items         []returnItemPayload  `json:"items"`
	Reason        string               `json:"reason"`
	Type          string               `json:"type"`
	Status        string               `json:"status"`
	RefundAmount  int64                `json:"refund_amount"`
	AdminNotes    string               `json:"admin_notes,omitempty"`
	StatusHistory []statusEntryPayload `json:"status_history"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
}

func buildReturnPayload(ret services.Return) returnPayload {
	payload := returnPayload{
		ID:            ret.ID,
		OrderID:       ret.OrderID,
		UserID:        ret.UserID,
		Items:         make([]returnItemPayload, 0, len(ret.Items)),
		Reason:        ret.Reason,
		Type:          string(ret.Type),
		Status:        string(ret.Status),
		RefundAmount:  ret.RefundAmount,
		AdminNotes:    ret.AdminNotes,
		StatusHistory: make([]statusEntryPayload, 0, len(ret.StatusHistory)),
		CreatedAt:     formatTime(ret.CreatedAt),
		UpdatedAt:     formatTime(ret.UpdatedAt),
	}
	for _, item := range ret.Items {
		payload.Items = append(payload.Items, returnItemPayload(item))
	}
	for _, entry := range ret.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusEntryPayload{
			Status:  string(entry.Status),
			Note:    entry.Note,
			ActorID: entry.ActorID,
			At:      formatTime(entry.At),
		})
	}
	return payload
}

type productPayload struct {
	ID                string  `json:"id"`
	SellerID          string  `json:"seller_id"`
	Name              string  `json:"name"`
	Price             int64   `json:"price"`
	Stock             int     `json:"stock"`
	LowStockThreshold int     `json:"low_stock_threshold,omitempty"`
	Rating            float64 `json:"rating"`
	NumReviews        int     `json:"num_reviews"`
	UpdatedAt         string  `json:"updated_at"`
}

func buildProductPayload(p services.Product) productPayload {
	return productPayload{
		ID:                p.ID,
		SellerID:          p.SellerID,
		Name:              p.Name,
		Price:             p.Price,
		Stock:             p.Stock,
		LowStockThreshold: p.LowStockThreshold,
		Rating:            p.Rating,
		NumReviews:        p.NumReviews,
		UpdatedAt:         formatTime(p.UpdatedAt),
	}
}

type coinTransactionPayload struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Amount       int64          `json:"amount"`
	Source       string         `json:"source"`
	Reference    string         `json:"reference"`
	BalanceAfter int64          `json:"balance_after"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

func buildCoinTransactionPayload(tx services.CoinTransaction) coinTransactionPayload {
	return coinTransactionPayload{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		Source:       string(tx.Source),
		Reference:    tx.Reference.String(),
		BalanceAfter: tx.BalanceAfter,
		Metadata:     tx.Metadata,
		CreatedAt:    formatTime(tx.CreatedAt),
	}
}

type inventoryAlertPayload struct {
	ID           string `json:"id"`
	ProductID    string `json:"product_id"`
	SellerID     string `json:"seller_id"`
	Type         string `json:"type"`
	CurrentStock int    `json:"current_stock"`
	Threshold    int    `json:"threshold"`
	Message      string `json:"message,omitempty"`
	IsRead       bool   `json:"is_read"`
	IsResolved   bool   `json:"is_resolved"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func buildInventoryAlertPayload(a services.InventoryAlert) inventoryAlertPayload {
	return inventoryAlertPayload{
		ID:           a.ID,
		ProductID:    a.ProductID,
		SellerID:     a.SellerID,
		Type:         string(a.Type),
		CurrentStock: a.CurrentStock,
		Threshold:    a.Threshold,
		Message:      a.Message,
		IsRead:       a.IsRead,
		IsResolved:   a.IsResolved,
		ResolvedAt:   formatTimePtr(a.ResolvedAt),
		CreatedAt:    formatTime(a.CreatedAt),
		UpdatedAt:    formatTime(a.UpdatedAt),
	}
}

type referralPayload struct {
	ID                  string `json:"id"`
	ReferredID          string `json:"referred_id"`
	Status              string `json:"status"`
	SignupReward        int64  `json:"signup_reward"`
	OrderReward         int64  `json:"order_reward"`
	FirstOrderCompleted bool   `json:"first_order_completed"`
	TotalRewards        int64  `json:"total_rewards"`
	CreatedAt           string `json:"created_at"`
	CompletedAt         string `json:"completed_at,omitempty"`
}

func buildReferralPayload(r services.Referral) referralPayload {
	return referralPayload{
		ID:                  r.ID,
		ReferredID:          r.ReferredID,
		Status:              string(r.Status),
		SignupReward:        r.SignupReward,
		OrderReward:         r.OrderReward,
		FirstOrderCompleted: r.FirstOrderCompleted,
		TotalRewards:        r.TotalRewards,
		CreatedAt:           formatTime(r.CreatedAt),
		CompletedAt:         formatTimePtr(r.CompletedAt),
	}
}

type userPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Role         string  `json:"role"`
	Coins        int64   `json:"coins"`
	ReferralCode string  `json:"referral_code"`
	ReferredBy   *string `json:"referred_by,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func buildUserPayload(u services.User) userPayload {
	return userPayload{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		Coins:        u.Coins,
		ReferralCode: u.ReferralCode,
		ReferredBy:   u.ReferredBy,
		CreatedAt:    formatTime(u.CreatedAt),
	}
}
