package types

import (
	"encoding/json"
	"time"
)

// Cabinet is a connected Wildberries seller account: the API key used to pull
// seller data plus the webhook endpoint notifications are delivered to.
type Cabinet struct {
	ID     string        `json:"id" db:"id"`
	UserID int64         `json:"user_id" db:"user_id"`
	Name   string        `json:"name" db:"name"`
	Status CabinetStatus `json:"status" db:"status"`

	// APIKey is the WB statistics/feedbacks API token. Never serialized.
	APIKey string `json:"-" db:"api_key"`

	// Delivery
	WebhookURL    string `json:"webhook_url" db:"webhook_url"`
	WebhookSecret string `json:"-" db:"webhook_secret"`

	// Sync state
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastSyncError string     `json:"last_sync_error,omitempty" db:"last_sync_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Order is a normalized Wildberries order row. SRID is the WB-unique order
// identifier and the natural key for snapshot diffing.
type Order struct {
	CabinetID string `json:"cabinet_id" db:"cabinet_id"`
	SRID      string `json:"srid" db:"srid"`

	NmID    int64  `json:"nm_id" db:"nm_id"`
	Article string `json:"article" db:"article"`
	Subject string `json:"subject" db:"subject"`
	Brand   string `json:"brand" db:"brand"`

	Status     OrderStatus `json:"status" db:"status"`
	TotalPrice float64     `json:"total_price" db:"total_price"`
	Warehouse  string      `json:"warehouse" db:"warehouse"`
	Region     string      `json:"region" db:"region"`

	OrderedAt      time.Time `json:"ordered_at" db:"ordered_at"`
	LastChangeDate time.Time `json:"last_change_date" db:"last_change_date"`
}

// Sale is a row from the WB sales stream. SaleID starts with "S" for a sale
// (buyout) and "R" for a return.
type Sale struct {
	CabinetID string `json:"cabinet_id" db:"cabinet_id"`
	SaleID    string `json:"sale_id" db:"sale_id"`
	SRID      string `json:"srid" db:"srid"`

	NmID    int64  `json:"nm_id" db:"nm_id"`
	Article string `json:"article" db:"article"`
	Brand   string `json:"brand" db:"brand"`

	TotalPrice float64   `json:"total_price" db:"total_price"`
	ForPay     float64   `json:"for_pay" db:"for_pay"`
	SoldAt     time.Time `json:"sold_at" db:"sold_at"`
}

// IsReturn reports whether the sale record is a customer return.
func (s Sale) IsReturn() bool {
	return len(s.SaleID) > 0 && s.SaleID[0] == 'R'
}

// Review is a buyer feedback entry from the WB feedbacks API.
type Review struct {
	CabinetID string `json:"cabinet_id" db:"cabinet_id"`
	ReviewID  string `json:"review_id" db:"review_id"`

	NmID        int64  `json:"nm_id" db:"nm_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Rating      int    `json:"rating" db:"rating"`
	Text        string `json:"text" db:"text"`
	UserName    string `json:"user_name" db:"user_name"`

	CreatedDate time.Time `json:"created_date" db:"created_date"`
	Answered    bool      `json:"answered" db:"answered"`
}

// StockSize is the remaining quantity for one size of a product.
type StockSize struct {
	TechSize string `json:"tech_size"`
	Quantity int    `json:"quantity"`
}

// Stock is the aggregated inventory snapshot for one product (nm_id) across
// warehouses, broken down by size.
type Stock struct {
	CabinetID string      `json:"cabinet_id" db:"cabinet_id"`
	NmID      int64       `json:"nm_id" db:"nm_id"`
	Article   string      `json:"article" db:"article"`
	Subject   string      `json:"subject" db:"subject"`
	Sizes     []StockSize `json:"sizes" db:"sizes"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// MinQuantity returns the smallest per-size quantity, or 0 for sizeless rows.
func (s Stock) MinQuantity() int {
	if len(s.Sizes) == 0 {
		return 0
	}
	min := s.Sizes[0].Quantity
	for _, sz := range s.Sizes[1:] {
		if sz.Quantity < min {
			min = sz.Quantity
		}
	}
	return min
}

// ChangeEvent is a semantically meaningful state transition detected between
// two successive sync snapshots.
//
// The tuple (CabinetID, EntityType, EntityID, Transition) is the dedupe key:
// an event with an already-recorded key must never be re-emitted.
type ChangeEvent struct {
	Type       EventType      `json:"type"`
	CabinetID  string         `json:"cabinet_id"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Transition string         `json:"transition"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Notification is a user-facing message generated from a ChangeEvent and
// recorded in delivery history.
type Notification struct {
	ID        string `json:"id" db:"id"`
	CabinetID string `json:"cabinet_id" db:"cabinet_id"`

	EventType  EventType  `json:"event_type" db:"event_type"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Transition string     `json:"transition" db:"transition"`

	Priority Priority `json:"priority" db:"priority"`
	Title    string   `json:"title" db:"title"`
	Body     string   `json:"body" db:"body"`

	// GroupKey lets webhook consumers collapse related notifications
	// (e.g. all stock alerts for one product).
	GroupKey string          `json:"group_key,omitempty" db:"group_key"`
	Payload  json.RawMessage `json:"payload,omitempty" db:"payload"`

	Status        DeliveryStatus `json:"status" db:"status"`
	Attempts      int            `json:"attempts" db:"attempts"`
	FailureReason string         `json:"failure_reason,omitempty" db:"failure_reason"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NotificationSettings are the per-cabinet toggles gating each notification
// family independently. A cabinet without a stored row gets DefaultSettings;
// a missing row must never silently drop notifications.
type NotificationSettings struct {
	CabinetID string `json:"cabinet_id" db:"cabinet_id"`

	OrdersEnabled  bool `json:"orders_enabled" db:"orders_enabled"`
	SalesEnabled   bool `json:"sales_enabled" db:"sales_enabled"`
	ReviewsEnabled bool `json:"reviews_enabled" db:"reviews_enabled"`
	StocksEnabled  bool `json:"stocks_enabled" db:"stocks_enabled"`

	// CriticalStockThreshold: a size quantity strictly below this value is
	// critical.
	CriticalStockThreshold int `json:"critical_stock_threshold" db:"critical_stock_threshold"`

	// NegativeRatingMax: reviews with rating <= this value are negative.
	NegativeRatingMax int `json:"negative_rating_max" db:"negative_rating_max"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultSettings returns the default-enabled settings for a cabinet.
func DefaultSettings(cabinetID string) NotificationSettings {
	return NotificationSettings{
		CabinetID:              cabinetID,
		OrdersEnabled:          true,
		SalesEnabled:           true,
		ReviewsEnabled:         true,
		StocksEnabled:          true,
		CriticalStockThreshold: 5,
		NegativeRatingMax:      3,
	}
}

// Enabled reports whether the given event type is switched on.
func (s NotificationSettings) Enabled(et EventType) bool {
	switch et {
	case EventNewOrder, EventOrderStatusChange, EventOrderBuyout,
		EventOrderCancellation, EventOrderReturn:
		return s.OrdersEnabled
	case EventSaleBuyout, EventSaleReturn:
		return s.SalesEnabled
	case EventNegativeReview:
		return s.ReviewsEnabled
	case EventCriticalStock:
		return s.StocksEnabled
	default:
		return false
	}
}

// SyncSnapshot bundles the previous and current state of one cabinet's data
// as handed from the sync service to the notification service.
type SyncSnapshot struct {
	CabinetID string

	PrevOrders []Order
	CurrOrders []Order

	PrevSales []Sale
	CurrSales []Sale

	PrevReviews []Review
	CurrReviews []Review

	PrevStocks []Stock
	CurrStocks []Stock
}
