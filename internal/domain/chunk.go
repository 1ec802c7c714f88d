package domain

// ImportRow is a validated, normalized catalog row as carried inside a queue
// message. All loose typing from the raw feed (stringly prices, "yes"/"1"
// flags, comma-joined keywords) has been resolved at the validation boundary.
type ImportRow struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	CategoryID  string   `json:"category_id"`
	Keywords    []string `json:"keywords,omitempty"`
	DownloadURL string   `json:"download_url,omitempty"`
	VideoURL    string   `json:"video_url,omitempty"`
	Featured    bool     `json:"featured"`
	Archived    bool     `json:"archived"`
	Images      []string `json:"images,omitempty"`
}

// Chunk is a bounded subset of validated rows dispatched as one queue
// message. Chunks carry no cross-chunk ordering guarantee; the only planner
// invariant is that every validated row lands in exactly one chunk.
type Chunk struct {
	JobID   string      `json:"job_id"`
	StoreID string      `json:"store_id"`
	Seq     int         `json:"seq"`
	Rows    []ImportRow `json:"rows"`
}
