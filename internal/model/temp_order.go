package model

import (
	"time"
)

// TempOrder short-lived pre-checkout snapshot. Written once at checkout
// initiation, read once by the payment handoff, then deleted or left to
// expire in redis. Never mutated after creation; not authoritative.
type TempOrder struct {
	ID         string          `json:"id"`
	BuyerID    uint64          `json:"buyer_id"`
	Lines      []TempOrderLine `json:"lines"`
	Address    Address         `json:"address"`
	TotalPrice int64           `json:"total_price"` // cents
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// TempOrderLine one cart line with a price snapshot
type TempOrderLine struct {
	ProductID uint64 `json:"product_id"`
	SellerID  uint64 `json:"seller_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"` // cents
	LineTotal int64  `json:"line_total"` // cents
}

// Address shipping address snapshot
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// IsExpired check staging snapshot expiry
func (t *TempOrder) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// String renders the address as a single order snapshot line
func (a Address) String() string {
	s := a.Line1
	if a.Line2 != "" {
		s += ", " + a.Line2
	}
	s += ", " + a.City + ", " + a.State + " " + a.PostalCode + ", " + a.Country
	return s
}
