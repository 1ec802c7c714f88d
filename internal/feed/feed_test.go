package feed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const csvFeed = `name,price,category_id,keywords,featured,images,notes
Logo Pack,19.90,cat-1,"logo, vector",yes,a.png|b.png,internal note
Icon Set,,cat-2,,,,

Banner,5,cat-1,banner,,,
`

func TestDecodeCSV(t *testing.T) {
	raws, err := DecodeCSV(strings.NewReader(csvFeed))
	require.NoError(t, err)
	require.Len(t, raws, 3, "blank lines are skipped")

	first := raws[0]
	require.Equal(t, "Logo Pack", first.Name)
	require.Equal(t, "19.90", first.Price, "cells stay strings; typing happens in the validator")
	require.Equal(t, "cat-1", first.CategoryID)
	require.Equal(t, "logo, vector", first.Keywords)
	require.Equal(t, "yes", first.Featured)
	require.Equal(t, []string{"a.png", "b.png"}, first.Images)

	// Empty optional cells stay nil, not "".
	second := raws[1]
	require.Equal(t, "Icon Set", second.Name)
	require.Nil(t, second.Price)
	require.Nil(t, second.Keywords)
	require.Nil(t, second.Featured)
}

func TestDecodeCSVHeaderMapping(t *testing.T) {
	// Headers are case-insensitive and space-tolerant; unknown columns are
	// ignored.
	input := "Name, PRICE ,Category ID\nLogo,5,cat-1\n"
	raws, err := DecodeCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.Equal(t, "Logo", raws[0].Name)
	require.Equal(t, "5", raws[0].Price)
	require.Equal(t, "cat-1", raws[0].CategoryID)
}

func TestDecodeJSON(t *testing.T) {
	input := `[{"name":"Logo Pack","price":19.9,"category_id":"cat-1","keywords":["logo","vector"]}]`
	raws, err := DecodeJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, raws, 1)
	require.Equal(t, "Logo Pack", raws[0].Name)

	_, err = DecodeJSON(strings.NewReader("{not json"))
	require.Error(t, err)
}

func TestDecodeXLSX(t *testing.T) {
	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]interface{}{"name", "price", "category_id"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]interface{}{"Logo Pack", "19.90", "cat-1"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A3", &[]interface{}{"Icon Set", "5", "cat-2"}))

	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	raws, err := DecodeXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, raws, 2)
	require.Equal(t, "Logo Pack", raws[0].Name)
	require.Equal(t, "19.90", raws[0].Price)
	require.Equal(t, "cat-2", raws[1].CategoryID)
}

func TestDetectFormat(t *testing.T) {
	testCases := []struct {
		filename string
		want     Format
		wantErr  bool
	}{
		{filename: "feed.csv", want: FormatCSV},
		{filename: "FEED.XLSX", want: FormatXLSX},
		{filename: "rows.json", want: FormatJSON},
		{filename: "feed.xml", wantErr: true},
		{filename: "noext", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			got, err := DetectFormat(tc.filename)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
