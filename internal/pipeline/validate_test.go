package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/keilo/catalogd/internal/domain"
)

// fakeCategories is an in-memory CategoryChecker recording lookup traffic.
type fakeCategories struct {
	existing map[string]bool
	calls    int
	err      error
}

func (f *fakeCategories) Exists(ctx context.Context, storeID, categoryID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.existing[categoryID], nil
}

func validRaw(name string) RawRow {
	return RawRow{Name: name, Price: 9.99, CategoryID: "cat-1"}
}

func TestValidateNormalizesRows(t *testing.T) {
	v := NewValidator(&fakeCategories{existing: map[string]bool{"cat-1": true}})

	raws := []RawRow{
		{
			Name:        "  Logo Pack  ",
			Description: " vector logos ",
			Price:       "19.90",
			CategoryID:  " cat-1 ",
			Keywords:    "logo, vector, logo , branding",
			Featured:    "yes",
			Archived:    false,
		},
	}

	rows, failures, err := v.Validate(context.Background(), "store-1", raws)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Unexpected failures: %v", failures)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Name != "Logo Pack" {
		t.Errorf("Name not trimmed: %q", row.Name)
	}
	if row.Price != 19.90 {
		t.Errorf("Price not parsed from string: %v", row.Price)
	}
	if row.CategoryID != "cat-1" {
		t.Errorf("CategoryID not trimmed: %q", row.CategoryID)
	}
	if len(row.Keywords) != 3 {
		t.Errorf("Keywords not deduplicated: %v", row.Keywords)
	}
	if !row.Featured {
		t.Error("Featured flag not normalized from \"yes\"")
	}
	if row.Archived {
		t.Error("Archived should stay false")
	}
}

func TestValidateSuffixesInFileDuplicates(t *testing.T) {
	v := NewValidator(&fakeCategories{existing: map[string]bool{"cat-1": true}})

	raws := []RawRow{validRaw("Logo"), validRaw("Logo"), validRaw("Logo"), validRaw("Icon")}
	rows, failures, err := v.Validate(context.Background(), "store-1", raws)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Unexpected failures: %v", failures)
	}

	got := []string{rows[0].Name, rows[1].Name, rows[2].Name, rows[3].Name}
	want := []string{"Logo", "Logo (2)", "Logo (3)", "Icon"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateSuffixSkipsLiteralCollisions(t *testing.T) {
	v := NewValidator(&fakeCategories{existing: map[string]bool{"cat-1": true}})

	// A duplicate "Logo" cannot take the suffix " (2)" because the feed
	// already carries a literal "Logo (2)" row.
	raws := []RawRow{validRaw("Logo"), validRaw("Logo (2)"), validRaw("Logo")}
	rows, failures, err := v.Validate(context.Background(), "store-1", raws)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Unexpected failures: %v", failures)
	}

	got := []string{rows[0].Name, rows[1].Name, rows[2].Name}
	want := []string{"Logo", "Logo (2)", "Logo (3)"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: got %q, want %q", i, got[i], want[i])
		}
	}

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.Name] {
			t.Fatalf("Duplicate output name %q: rows were silently collapsed", row.Name)
		}
		seen[row.Name] = true
	}
}

func TestValidateExcludesBadRowsKeepsRest(t *testing.T) {
	v := NewValidator(&fakeCategories{existing: map[string]bool{"cat-1": true}})

	raws := make([]RawRow, 0, 25)
	for i := 0; i < 23; i++ {
		raws = append(raws, validRaw(fmt.Sprintf("Item %d", i)))
	}
	bad := validRaw("Negative")
	bad.Price = "-5"
	raws = append(raws, bad)
	dangling := validRaw("Orphan")
	dangling.CategoryID = "cat-missing"
	raws = append(raws, dangling)

	rows, failures, err := v.Validate(context.Background(), "store-1", raws)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(rows) != 23 {
		t.Errorf("Expected 23 valid rows, got %d", len(rows))
	}
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failures))
	}

	if !domain.IsKind(failures[0].Err, domain.KindValidation) {
		t.Errorf("Negative price should be a validation error, got %v", failures[0].Err)
	}
	if !domain.IsKind(failures[1].Err, domain.KindReference) {
		t.Errorf("Dangling category should be a reference error, got %v", failures[1].Err)
	}
	if failures[1].Row != 24 {
		t.Errorf("Failure should carry the original row index, got %d", failures[1].Row)
	}
}

func TestValidateMemoizesCategoryLookups(t *testing.T) {
	checker := &fakeCategories{existing: map[string]bool{"cat-1": true}}
	v := NewValidator(checker)

	raws := make([]RawRow, 50)
	for i := range raws {
		raws[i] = validRaw(fmt.Sprintf("Item %d", i))
	}
	if _, _, err := v.Validate(context.Background(), "store-1", raws); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if checker.calls != 1 {
		t.Errorf("Expected 1 category lookup for 50 same-category rows, got %d", checker.calls)
	}
}

func TestValidateMemoizesMissingCategories(t *testing.T) {
	checker := &fakeCategories{existing: map[string]bool{}}
	v := NewValidator(checker)

	raws := make([]RawRow, 50)
	for i := range raws {
		raws[i] = validRaw(fmt.Sprintf("Item %d", i))
		raws[i].CategoryID = "cat-missing"
	}
	rows, failures, err := v.Validate(context.Background(), "store-1", raws)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(rows) != 0 || len(failures) != 50 {
		t.Fatalf("Expected every row rejected, got %d rows, %d failures", len(rows), len(failures))
	}
	if checker.calls != 1 {
		t.Errorf("Expected 1 category lookup for 50 rows in one missing category, got %d", checker.calls)
	}
}

func TestValidateTransportFailureIsFatal(t *testing.T) {
	v := NewValidator(&fakeCategories{err: errors.New("connection refused")})

	_, _, err := v.Validate(context.Background(), "store-1", []RawRow{validRaw("Logo")})
	if err == nil {
		t.Fatal("Expected submission-level error when category store is unreachable")
	}
	if !domain.IsKind(err, domain.KindTransport) {
		t.Errorf("Expected transport error, got %v", err)
	}
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name    string
		input   interface{}
		want    float64
		wantErr bool
	}{
		{name: "float", input: 12.5, want: 12.5},
		{name: "int", input: 7, want: 7},
		{name: "json number", input: json.Number("3.25"), want: 3.25},
		{name: "numeric string", input: "10.00", want: 10},
		{name: "zero", input: 0.0, want: 0},
		{name: "nil", input: nil, wantErr: true},
		{name: "empty string", input: "  ", wantErr: true},
		{name: "garbage string", input: "free", wantErr: true},
		{name: "negative", input: -1.0, wantErr: true},
		{name: "negative string", input: "-5", wantErr: true},
		{name: "bool", input: true, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePrice(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %v", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	testCases := []struct {
		name    string
		input   interface{}
		want    bool
		wantErr bool
	}{
		{name: "nil defaults false", input: nil, want: false},
		{name: "bool true", input: true, want: true},
		{name: "string true", input: "true", want: true},
		{name: "string one", input: "1", want: true},
		{name: "string yes", input: "YES", want: true},
		{name: "string on", input: "on", want: true},
		{name: "string false", input: "false", want: false},
		{name: "string zero", input: "0", want: false},
		{name: "empty string", input: "", want: false},
		{name: "numeric one", input: 1.0, want: true},
		{name: "numeric zero", input: 0.0, want: false},
		{name: "garbage", input: "maybe", wantErr: true},
		{name: "numeric two", input: 2.0, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseFlag("featured", tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %v", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseKeywords(t *testing.T) {
	testCases := []struct {
		name  string
		input interface{}
		want  int
	}{
		{name: "nil", input: nil, want: 0},
		{name: "comma string", input: "a, b, c", want: 3},
		{name: "comma string with dupes", input: "a,a, b", want: 2},
		{name: "string slice", input: []string{"a", "b"}, want: 2},
		{name: "interface slice", input: []interface{}{"a", "b", 3}, want: 2},
		{name: "empty parts", input: ", ,", want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseKeywords(tc.input)
			if len(got) != tc.want {
				t.Errorf("Got %v (%d), want %d entries", got, len(got), tc.want)
			}
		})
	}
}
