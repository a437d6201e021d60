package model

import (
	"time"
)

// Product product model. QuantityAvailable is only ever mutated through the
// repository's conditional update operations and never goes negative.
type Product struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID          uint64    `gorm:"type:bigint unsigned;not null;index" json:"seller_id"`
	Name              string    `gorm:"type:varchar(200);not null" json:"name"`
	Description       *string   `gorm:"type:text" json:"description,omitempty"`
	Category          *string   `gorm:"type:varchar(50);index" json:"category,omitempty"`
	Price             int64     `gorm:"type:bigint;not null" json:"price"` // cents
	QuantityAvailable int       `gorm:"type:int;not null;default:0" json:"quantity_available"`
	Sales             int       `gorm:"type:int;not null;default:0" json:"sales"`
	IsActive          bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt         time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName set name
func (Product) TableName() string {
	return "products"
}

// HasStock check if product has at least qty units available
func (p *Product) HasStock(qty int) bool {
	return p.QuantityAvailable >= qty
}

// GetPriceUnits get price in currency units
func (p *Product) GetPriceUnits() float64 {
	return float64(p.Price) / 100
}
