package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Product represents a catalog entry. It is the system of record for product
// data; the search index only holds a derived projection of it.
//
// (store_id, name) is unique per store. An import that would collide with an
// unrelated entry must rename or reject the row, never silently overwrite it.
type Product struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	StoreID     string      `gorm:"type:text;not null;index:idx_products_store_name,unique" json:"store_id"`
	Name        string      `gorm:"type:text;not null;index:idx_products_store_name,unique" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Price       float64     `gorm:"not null;default:0" json:"price"`
	CategoryID  string      `gorm:"type:text;index:idx_products_category" json:"category_id"`
	Keywords    StringArray `gorm:"type:text" json:"keywords"`
	DownloadURL string      `gorm:"type:text" json:"download_url,omitempty"`
	VideoURL    string      `gorm:"type:text" json:"video_url,omitempty"`
	Featured    bool        `gorm:"default:false" json:"featured"`
	Archived    bool        `gorm:"default:false;index:idx_products_archived" json:"archived"`
	Popularity  int64       `gorm:"default:0" json:"popularity"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Images []ProductImage `gorm:"-" json:"images,omitempty"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// ProductImage is one entry of a product's ordered image list. Position is
// significant; image lists are replaced wholesale, never patched, because a
// partial patch cannot express reordering safely.
type ProductImage struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	ProductID string    `gorm:"type:text;not null;index:idx_product_images_product" json:"product_id"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	URL       string    `gorm:"type:text;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ProductImage.
func (ProductImage) TableName() string {
	return "product_images"
}

// ImageURLs returns the product's image URLs in position order.
func (p *Product) ImageURLs() []string {
	urls := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		urls = append(urls, img.URL)
	}
	return urls
}
