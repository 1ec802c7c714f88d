package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/keilo/catalogd/internal/domain"
)

// RawRow is one loosely-typed row from an external feed. Price may arrive as
// a number or a string, flags as booleans or "true"/"1"/"yes"-style strings,
// and keywords as a list or a comma-joined string. Everything is normalized
// here, at the validation boundary, so nothing stringly-typed travels
// downstream.
type RawRow struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       interface{} `json:"price"`
	CategoryID  string      `json:"category_id"`
	Keywords    interface{} `json:"keywords,omitempty"`
	DownloadURL string      `json:"download_url,omitempty"`
	VideoURL    string      `json:"video_url,omitempty"`
	Featured    interface{} `json:"featured,omitempty"`
	Archived    interface{} `json:"archived,omitempty"`
	Images      []string    `json:"images,omitempty"`
}

// RowFailure records one excluded row and why. Failed rows count against the
// job's failed counter but never abort the submission.
type RowFailure struct {
	Row  int    `json:"row"`
	Name string `json:"name,omitempty"`
	Err  error  `json:"-"`
	Msg  string `json:"error"`
}

// CategoryChecker is the narrow contract the validator needs from the
// category store.
type CategoryChecker interface {
	Exists(ctx context.Context, storeID, categoryID string) (bool, error)
}

// Validator normalizes raw feed rows into domain.ImportRow values and
// deduplicates names within a submission.
type Validator struct {
	categories CategoryChecker
}

// NewValidator creates a Validator backed by the given category store.
func NewValidator(categories CategoryChecker) *Validator {
	return &Validator{categories: categories}
}

// Validate normalizes and deduplicates raws for one store.
//
// Rows with a malformed field or a dangling category are excluded and
// reported in failures; the rest of the batch proceeds. Duplicate names
// within the submission are suffixed " (2)", " (3)", ... in file order so a
// feed never silently loses rows to in-file collisions. Category existence
// is checked once per distinct category, hit or miss.
//
// A transport failure from the category store is fatal to the submission,
// not row-level: nothing meaningful can be validated without it, and
// recording every row as failed would freeze a retryable outage into
// permanent row failures.
func (v *Validator) Validate(ctx context.Context, storeID string, raws []RawRow) ([]domain.ImportRow, []RowFailure, error) {
	rows := make([]domain.ImportRow, 0, len(raws))
	var failures []RowFailure

	categorySeen := make(map[string]bool) // categoryID -> exists, misses included
	names := make(map[string]bool)        // every name emitted so far
	suffixes := make(map[string]int)      // base name -> last suffix handed out

	for i, raw := range raws {
		row, err := v.normalize(raw)
		if err == nil {
			exists, checked := categorySeen[row.CategoryID]
			if !checked {
				exists, err = v.categories.Exists(ctx, storeID, row.CategoryID)
				if err != nil {
					return nil, nil, domain.NewTransportError("category existence check failed", err)
				}
				categorySeen[row.CategoryID] = exists
			}
			if !exists {
				err = domain.NewReferenceError("category_id", fmt.Sprintf("category %q does not exist in store", row.CategoryID))
			}
		}
		if err != nil {
			if de, ok := err.(*domain.Error); ok {
				de.Row = i
			}
			failures = append(failures, RowFailure{Row: i, Name: strings.TrimSpace(raw.Name), Err: err, Msg: err.Error()})
			continue
		}

		if names[row.Name] {
			row.Name = suffixName(row.Name, names, suffixes)
		}
		names[row.Name] = true

		rows = append(rows, row)
	}

	return rows, failures, nil
}

// suffixName renames an in-file duplicate deterministically. The suffix is
// bumped past any name already emitted, so a feed carrying both "Logo" twice
// and a literal "Logo (2)" still yields distinct names.
func suffixName(base string, names map[string]bool, suffixes map[string]int) string {
	n := suffixes[base]
	if n < 2 {
		n = 2
	} else {
		n++
	}
	for names[fmt.Sprintf("%s (%d)", base, n)] {
		n++
	}
	suffixes[base] = n
	return fmt.Sprintf("%s (%d)", base, n)
}

func (v *Validator) normalize(raw RawRow) (domain.ImportRow, error) {
	var row domain.ImportRow

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return row, domain.NewValidationError("name", "name is required")
	}

	price, err := parsePrice(raw.Price)
	if err != nil {
		return row, err
	}

	categoryID := strings.TrimSpace(raw.CategoryID)
	if categoryID == "" {
		return row, domain.NewValidationError("category_id", "category reference is required")
	}

	featured, err := parseFlag("featured", raw.Featured)
	if err != nil {
		return row, err
	}
	archived, err := parseFlag("archived", raw.Archived)
	if err != nil {
		return row, err
	}

	row = domain.ImportRow{
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		Price:       price,
		CategoryID:  categoryID,
		Keywords:    parseKeywords(raw.Keywords),
		DownloadURL: strings.TrimSpace(raw.DownloadURL),
		VideoURL:    strings.TrimSpace(raw.VideoURL),
		Featured:    featured,
		Archived:    archived,
		Images:      raw.Images,
	}
	return row, nil
}

// parsePrice accepts JSON numbers and numeric strings. Empty or unparseable
// prices fail the row, as do negative ones.
func parsePrice(v interface{}) (float64, error) {
	var price float64
	switch p := v.(type) {
	case nil:
		return 0, domain.NewValidationError("price", "price is required")
	case float64:
		price = p
	case int:
		price = float64(p)
	case int64:
		price = float64(p)
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return 0, domain.NewValidationError("price", fmt.Sprintf("unparseable price %q", p.String()))
		}
		price = f
	case string:
		s := strings.TrimSpace(p)
		if s == "" {
			return 0, domain.NewValidationError("price", "price is required")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, domain.NewValidationError("price", fmt.Sprintf("unparseable price %q", s))
		}
		price = f
	default:
		return 0, domain.NewValidationError("price", fmt.Sprintf("unsupported price type %T", v))
	}
	if price < 0 {
		return 0, domain.NewValidationError("price", fmt.Sprintf("price must be >= 0, got %v", price))
	}
	return price, nil
}

// parseFlag normalizes loosely-typed booleans. Absent values default to
// false; unrecognized values fail the row rather than being guessed at.
func parseFlag(field string, v interface{}) (bool, error) {
	switch f := v.(type) {
	case nil:
		return false, nil
	case bool:
		return f, nil
	case float64:
		if f == 0 || f == 1 {
			return f == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "", "false", "0", "no", "off":
			return false, nil
		case "true", "1", "yes", "on":
			return true, nil
		}
	}
	return false, domain.NewValidationError(field, fmt.Sprintf("unrecognized boolean value %v", v))
}

// parseKeywords accepts a string list or a comma-joined string and returns a
// trimmed, deduplicated set. Order is not significant downstream; first-seen
// order is kept for stable output.
func parseKeywords(v interface{}) []string {
	var parts []string
	switch k := v.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(k, ",")
	case []string:
		parts = k
	case []interface{}:
		for _, item := range k {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
