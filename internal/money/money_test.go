package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{name: "integer", in: "5", want: 500},
		{name: "two decimals", in: "12.50", want: 1250},
		{name: "one decimal", in: "0.5", want: 50},
		{name: "rounds half up", in: "1.005", want: 101},
		{name: "negative", in: "-3.25", want: -325},
		{name: "spaces", in: "  7.10 ", want: 710},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "abc", wantErr: true},
		{name: "largest accepted", in: "10000000000", want: MaxCents},
		{name: "above range", in: "10000000000.01", wantErr: true},
		{name: "would wrap int64", in: "100000000000000000000", wantErr: true},
		{name: "negative above range", in: "-92233720368547758.07", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Cents())
		})
	}
}

func TestAmountJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Total: FromCents(1500)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"15.00"}`, string(payload))

	var in struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
		C Amount `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2.35","b":4.5,"c":null}`), &in))
	assert.Equal(t, int64(235), in.A.Cents())
	assert.Equal(t, int64(450), in.B.Cents())
	assert.Equal(t, int64(0), in.C.Cents())

	err = json.Unmarshal([]byte(`{"a":"two"}`), &in)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"a":100000000000000000000}`), &in)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAmountArithmetic(t *testing.T) {
	price := MustParse("5.00")
	assert.Equal(t, "15.00", price.Mul(3).String())
	assert.Equal(t, "7.25", Sum(FromCents(500), FromCents(225)).String())
	assert.InDelta(t, 7.25, Sum(FromCents(500), FromCents(225)).Float(), 0.0001)
}

func TestAmountScan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan(int64(990)))
	assert.Equal(t, int64(990), a.Cents())
	require.NoError(t, a.Scan(nil))
	assert.Equal(t, int64(0), a.Cents())
	assert.Error(t, a.Scan(3.5))
}
