package domain

import "time"

// Category represents a product category owned by a store. The import
// pipeline only ever reads categories; rows referencing a category that does
// not exist in the owning store fail validation.
type Category struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	StoreID   string    `gorm:"type:text;not null;index:idx_categories_store" json:"store_id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "categories"
}
