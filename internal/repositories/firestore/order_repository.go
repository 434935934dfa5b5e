package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/voltmart/storefront/internal/domain"
	pfirestore "github.com/voltmart/storefront/internal/platform/firestore"
	"github.com/voltmart/storefront/internal/repositories"
)

const (
	ordersCollection        = "orders"
	paymentClaimsCollection = "paymentClaims"
)

// OrderRepository persists order aggregates in the orders collection. The productIds and
// sellerIds arrays are denormalised for array-contains queries. Gateway references are claimed in
// their own collection keyed by reference.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
	claims *pfirestore.Collection[paymentClaimDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		claims: pfirestore.NewCollection[paymentClaimDocument](provider, paymentClaimsCollection),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: id is required")
	}
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	page, err := decodePage(filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		return page.apply(q)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return trimPage(orders, page.size, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
}

func (r *OrderRepository) FindDeliveredPurchase(ctx context.Context, userID, productID string) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).
			Where("productIds", "array-contains", strings.TrimSpace(productID)).
			Where("isDelivered", "==", true).
			Where("isPaid", "==", true).
			Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFound("orders.findDeliveredPurchase", "no delivered purchase of product "+productID)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *OrderRepository) ListDeliveredWithoutBonus(ctx context.Context, maxAttempts, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("isDelivered", "==", true).Where("coinsEarned", "==", 0)
		if maxAttempts > 0 {
			q = q.Where("bonusAttempts", "<", maxAttempts)
		}
		return q.OrderBy("bonusAttempts", firestore.Asc).
			OrderBy("deliveredAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func (r *OrderRepository) ClaimPaymentReference(ctx context.Context, ref, orderID string) error {
	ref, orderID = strings.TrimSpace(ref), strings.TrimSpace(orderID)
	if ref == "" || orderID == "" {
		return errors.New("order repository: payment reference and order id are required")
	}
	return r.claims.InTx(ctx, func(ctx context.Context) error {
		existing, err := r.claims.Get(ctx, ref)
		switch {
		case err == nil:
			if existing.Data.OrderID == orderID {
				return nil
			}
			return pfirestore.Conflict("orders.claimPayment", "payment reference is bound to another order")
		case !isNotFound(err):
			return err
		}
		return r.claims.Create(ctx, ref, paymentClaimDocument{OrderID: orderID, ClaimedAt: time.Now().UTC()})
	})
}

type orderDocument struct {
	UserID          string                `firestore:"userId"`
	Items           []orderItemDocument   `firestore:"items"`
	ProductIDs      []string              `firestore:"productIds"`
	SellerIDs       []string              `firestore:"sellerIds"`
	ShippingAddress addressDocument       `firestore:"shippingAddress"`
	PaymentMethod   string                `firestore:"paymentMethod"`
	PaymentResult   *paymentDocument      `firestore:"paymentResult,omitempty"`
	Pricing         pricingDocument       `firestore:"pricing"`
	CoinDiscount    int64                 `firestore:"coinDiscount"`
	CoinsUsed       int64                 `firestore:"coinsUsed"`
	CoinsEarned     int64                 `firestore:"coinsEarned"`
	BonusAttempts   int                   `firestore:"bonusAttempts"`
	FinalAmount     int64                 `firestore:"finalAmount"`
	IsPaid          bool                  `firestore:"isPaid"`
	PaidAt          *time.Time            `firestore:"paidAt,omitempty"`
	IsDelivered     bool                  `firestore:"isDelivered"`
	DeliveredAt     *time.Time            `firestore:"deliveredAt,omitempty"`
	Status          string                `firestore:"status"`
	StatusHistory   []statusEntryDocument `firestore:"statusHistory"`
	TrackingNumber  string                `firestore:"trackingNumber,omitempty"`
	Carrier         string                `firestore:"carrier,omitempty"`
	CancelReason    string                `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type paymentClaimDocument struct {
	OrderID   string    `firestore:"orderId"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

type orderItemDocument struct {
	ProductID      *string `firestore:"productId"`
	SellerID       string  `firestore:"sellerId"`
	Name           string  `firestore:"name"`
	Image          string  `firestore:"image,omitempty"`
	Quantity       int     `firestore:"qty"`
	UnitPrice      int64   `firestore:"unitPrice"`
	GiftCouponCode string  `firestore:"giftCouponCode,omitempty"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

type paymentDocument struct {
	ProviderOrderID   string    `firestore:"providerOrderId"`
	ProviderPaymentID string    `firestore:"providerPaymentId"`
	Status            string    `firestore:"status"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

type pricingDocument struct {
	ItemsTotal int64 `firestore:"itemsTotal"`
	Tax        int64 `firestore:"tax"`
	Shipping   int64 `firestore:"shipping"`
	Total      int64 `firestore:"total"`
}

type statusEntryDocument struct {
	Status  string    `firestore:"status"`
	Note    string    `firestore:"note,omitempty"`
	ActorID string    `firestore:"actorId,omitempty"`
	At      time.Time `firestore:"at"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	productIDs := make([]string, 0, len(order.Items))
	sellers := make(map[string]struct{}, len(order.Items))
	sellerIDs := make([]string, 0, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID:      item.ProductID,
			SellerID:       item.SellerID,
			Name:           item.Name,
			Image:          item.Image,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			GiftCouponCode: item.GiftCouponCode,
		}
		if item.HasProduct() {
			productIDs = append(productIDs, *item.ProductID)
			if _, seen := sellers[item.SellerID]; !seen && item.SellerID != "" {
				sellers[item.SellerID] = struct{}{}
				sellerIDs = append(sellerIDs, item.SellerID)
			}
		}
	}

	history := make([]statusEntryDocument, len(order.StatusHistory))
	for i, entry := range order.StatusHistory {
		history[i] = statusEntryDocument{Status: string(entry.Status), Note: entry.Note, ActorID: entry.ActorID, At: entry.At.UTC()}
	}

	var payment *paymentDocument
	if order.PaymentResult != nil {
		payment = &paymentDocument{
			ProviderOrderID:   order.PaymentResult.ProviderOrderID,
			ProviderPaymentID: order.PaymentResult.ProviderPaymentID,
			Status:            order.PaymentResult.Status,
			UpdatedAt:         order.PaymentResult.UpdatedAt.UTC(),
		}
	}

	addr := order.ShippingAddress
	return orderDocument{
		UserID:     order.UserID,
		Items:      items,
		ProductIDs: trimmedOrEmpty(productIDs),
		SellerIDs:  trimmedOrEmpty(sellerIDs),
		ShippingAddress: addressDocument{
			Recipient: addr.Recipient, Line1: addr.Line1, Line2: addr.Line2, City: addr.City,
			State: addr.State, PostalCode: addr.PostalCode, Country: addr.Country, Phone: addr.Phone,
		},
		PaymentMethod: string(order.PaymentMethod),
		PaymentResult: payment,
		Pricing: pricingDocument{
			ItemsTotal: order.Pricing.ItemsTotal,
			Tax:        order.Pricing.Tax,
			Shipping:   order.Pricing.Shipping,
			Total:      order.Pricing.Total,
		},
		CoinDiscount:   order.CoinDiscount,
		CoinsUsed:      order.CoinsUsed,
		CoinsEarned:    order.CoinsEarned,
		BonusAttempts:  order.BonusAttempts,
		FinalAmount:    order.FinalAmount,
		IsPaid:         order.IsPaid,
		PaidAt:         order.PaidAt,
		IsDelivered:    order.IsDelivered,
		DeliveredAt:    order.DeliveredAt,
		Status:         string(order.Status),
		StatusHistory:  history,
		TrackingNumber: order.TrackingNumber,
		Carrier:        order.Carrier,
		CancelReason:   order.CancelReason,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID:      item.ProductID,
			SellerID:       item.SellerID,
			Name:           item.Name,
			Image:          item.Image,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			GiftCouponCode: item.GiftCouponCode,
		}
	}
	history := make([]domain.OrderStatusEntry, len(d.StatusHistory))
	for i, entry := range d.StatusHistory {
		history[i] = domain.OrderStatusEntry{Status: domain.OrderStatus(entry.Status), Note: entry.Note, ActorID: entry.ActorID, At: entry.At}
	}
	var payment *domain.PaymentResult
	if d.PaymentResult != nil {
		payment = &domain.PaymentResult{
			ProviderOrderID:   d.PaymentResult.ProviderOrderID,
			ProviderPaymentID: d.PaymentResult.ProviderPaymentID,
			Status:            d.PaymentResult.Status,
			UpdatedAt:         d.PaymentResult.UpdatedAt,
		}
	}
	addr := d.ShippingAddress
	return domain.Order{
		ID:     id,
		UserID: d.UserID,
		Items:  items,
		ShippingAddress: domain.Address{
			Recipient: addr.Recipient, Line1: addr.Line1, Line2: addr.Line2, City: addr.City,
			State: addr.State, PostalCode: addr.PostalCode, Country: addr.Country, Phone: addr.Phone,
		},
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		PaymentResult: payment,
		Pricing: domain.OrderPricing{
			ItemsTotal: d.Pricing.ItemsTotal,
			Tax:        d.Pricing.Tax,
			Shipping:   d.Pricing.Shipping,
			Total:      d.Pricing.Total,
		},
		CoinDiscount:   d.CoinDiscount,
		CoinsUsed:      d.CoinsUsed,
		CoinsEarned:    d.CoinsEarned,
		BonusAttempts:  d.BonusAttempts,
		FinalAmount:    d.FinalAmount,
		IsPaid:         d.IsPaid,
		PaidAt:         d.PaidAt,
		IsDelivered:    d.IsDelivered,
		DeliveredAt:    d.DeliveredAt,
		Status:         domain.OrderStatus(d.Status),
		StatusHistory:  history,
		TrackingNumber: d.TrackingNumber,
		Carrier:        d.Carrier,
		CancelReason:   d.CancelReason,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
