package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Order ID,Recipient,Seller SKU,Quantity\n"

func TestParse_GroupsRowsByOrderID(t *testing.T) {
	input := header +
		"A1,Max Mustermann,SKU-1,1\n" +
		"B2,Erika Muster,SKU-2,2\n" +
		" A1 ,Max Mustermann,SKU-3,1\n"

	res, err := New("OrderID", nil).Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "A1", res.Groups[0].ExternalID)
	assert.Equal(t, "B2", res.Groups[1].ExternalID)

	require.Len(t, res.Groups[0].Rows, 2)
	assert.Equal(t, "SKU-1", res.Groups[0].Rows[0].SellerSKU)
	assert.Equal(t, "SKU-3", res.Groups[0].Rows[1].SellerSKU)
	assert.Equal(t, 3, res.Rows)
	assert.Empty(t, res.Warnings)
}

func TestParse_StripsBOMAndWhitespaceFromHeaders(t *testing.T) {
	input := "\ufeffOrder ID,Seller\tSKU, Quantity \r\n" +
		"A1,SKU-1,1\r\n"

	res, err := New("OrderID", nil).Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"OrderID", "SellerSKU", "Quantity"}, res.Headers)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "1", res.Groups[0].Rows[0].Quantity)
}

func TestParse_ControlCharactersInKeyAreStripped(t *testing.T) {
	input := header +
		"A1\u200b,Max,SKU-1,1\n" +
		"\tA1,Max,SKU-2,1\n"

	res, err := New("OrderID", nil).Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "A1", res.Groups[0].ExternalID)
	assert.Len(t, res.Groups[0].Rows, 2)
}

func TestParse_RowIsolation(t *testing.T) {
	input := header +
		"A1,Max,SKU-1,1\n" +
		"A1,Max,SKU-2\n" +
		"B2,Erika,SKU-3,1\n" +
		",Nobody,SKU-4,1\n" +
		"C3,Hans,SKU-5,4\n"

	res, err := New("OrderID", nil).Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rows)
	assert.Len(t, res.Groups, 3)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, 3, res.Warnings[0].Line)
	assert.Contains(t, res.Warnings[0].Reason, "column count mismatch")
	assert.Equal(t, 5, res.Warnings[1].Line)
	assert.Equal(t, "missing order id", res.Warnings[1].Reason)
}

func TestParse_UnknownColumnsGoToExtra(t *testing.T) {
	input := "Order ID,Buyer Message\nA1,please hurry\n"

	res, err := New("OrderID", nil).Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "please hurry", res.Groups[0].Rows[0].Extra["BuyerMessage"])
}

func TestParse_FatalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "empty file",
			input: "",
			want:  ErrMissingHeader,
		},
		{
			name:  "wrong key column",
			input: "Recipient,Order ID\nMax,A1\n",
			want:  ErrInvalidKeyColumn,
		},
		{
			name:  "key column not first after normalization",
			input: "Order Number,Recipient\nA1,Max\n",
			want:  ErrInvalidKeyColumn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New("OrderID", nil).Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestParseFile_Missing(t *testing.T) {
	_, err := New("OrderID", nil).ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"A1,Max,SKU-1,1\n"), 0o600))

	res, err := New("OrderID", nil).ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, res.Groups, 1)
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "\ufeffOrder ID", want: "OrderID"},
		{in: " House Name or Number ", want: "HouseNameorNumber"},
		{in: "Phone #", want: "Phone#"},
		{in: "SKU\x00Unit", want: "SKUUnit"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHeader(tt.in), tt.in)
	}
}
