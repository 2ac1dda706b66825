package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-discount/internal/domain/discount"
)

var december15 = time.Date(2025, time.December, 15, 10, 0, 0, 0, time.UTC)

func TestDecodeOrder(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		want  discount.Order
		err   bool
	}{
		{
			name:  "string total",
			input: `{"customer":"Jane","loyalty":true,"items":12,"total":"100.00","coupon":"NEWYEAR"}`,
			want: discount.Order{
				CustomerName:  "Jane",
				LoyaltyMember: true,
				ItemCount:     12,
				Total:         decimal.RequireFromString("100.00"),
				CouponCode:    "NEWYEAR",
			},
		},
		{
			name:  "number total and null coupon",
			input: `{"customer":"Bob","items":6,"total":49.99,"coupon":null}`,
			want: discount.Order{
				CustomerName: "Bob",
				ItemCount:    6,
				Total:        decimal.RequireFromString("49.99"),
			},
		},
		{
			name:  "unknown fields skipped",
			input: `{"items":1,"meta":{"tags":["a","b"]},"total":"1"}`,
			want:  discount.Order{ItemCount: 1, Total: decimal.NewFromInt(1)},
		},
		{name: "bad total", input: `{"total":"abc"}`, err: true},
		{name: "bool total", input: `{"total":true}`, err: true},
		{name: "string items", input: `{"items":"3"}`, err: true},
		{name: "not an object", input: `[1,2]`, err: true},
		{name: "truncated", input: `{"customer":`, err: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOrder([]byte(tt.input))
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.CustomerName, got.CustomerName)
			assert.Equal(t, tt.want.LoyaltyMember, got.LoyaltyMember)
			assert.Equal(t, tt.want.ItemCount, got.ItemCount)
			assert.Equal(t, tt.want.CouponCode, got.CouponCode)
			assert.True(t, tt.want.Total.Equal(got.Total), "total: want %s, got %s", tt.want.Total, got.Total)
		})
	}
}

func TestProcessor_Run(t *testing.T) {
	input := strings.Join([]string{
		`{"customer":"Jane","loyalty":true,"items":12,"total":"100.00","coupon":"NEWYEAR"}`,
		`{"customer":"Bob","items":6,"total":50,"coupon":null}`,
		``,
		`{"customer":"Neg","items":-1,"total":10}`,
		`{"customer":"Sam","loyalty":false,"items":1,"total":"5","extra":{"a":[1,2]}}`,
	}, "\n")

	var observed []Result
	p := &Processor{
		Evaluator: discount.NewCalculator(),
		Today:     december15,
		Observe:   func(r Result) { observed = append(observed, r) },
	}

	var out bytes.Buffer
	stats, err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	want := []string{
		`{"line":1,"customer":"Jane","loyalty":true,"items":12,"coupon":"NEWYEAR","base_total":"100.00","total":"90.00","discount":"10.00","percent":"10","rule":"coupon"}`,
		`{"line":2,"customer":"Bob","loyalty":false,"items":6,"coupon":null,"base_total":"50.00","total":"47.50","discount":"2.50","percent":"5","rule":"promotion","promotion":"december"}`,
		`{"line":4,"customer":"Neg","loyalty":false,"items":-1,"coupon":null,"error":"invalid order: item count must not be negative, got -1"}`,
		`{"line":5,"customer":"Sam","loyalty":false,"items":1,"coupon":null,"base_total":"5.00","total":"5.00","discount":"0.00","percent":"0","rule":"none"}`,
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", out.String())

	assert.Equal(t, 4, stats.Orders)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, map[discount.Rule]int{
		discount.RuleCoupon:    1,
		discount.RulePromotion: 1,
		discount.RuleNone:      1,
	}, stats.ByRule)

	require.Len(t, observed, 4)
	assert.ErrorIs(t, observed[2].Err, discount.ErrInvalidOrder)
	assert.Equal(t, 4, observed[2].Line)
}

func TestProcessor_Run_MalformedStops(t *testing.T) {
	input := `{"customer":"Jane","items":1,"total":"1"}` + "\n" + `{"customer":` + "\n" + `{"items":1,"total":"1"}`

	p := &Processor{Evaluator: discount.NewCalculator(), Today: december15}
	var out bytes.Buffer
	stats, err := p.Run(context.Background(), strings.NewReader(input), &out)
	require.ErrorContains(t, err, "decode line 2")
	assert.Equal(t, 1, stats.Orders)
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))

	t.Run("flushes complete lines", func(t *testing.T) {
		const valid = 60
		var in strings.Builder
		for range valid {
			in.WriteString(`{"customer":"Jane Doe Customer","loyalty":true,"items":12,"total":"100.00","coupon":"NEWYEAR"}` + "\n")
		}
		in.WriteString(`{"customer":` + "\n")

		var out bytes.Buffer
		stats, err := p.Run(context.Background(), strings.NewReader(in.String()), &out)
		require.ErrorContains(t, err, fmt.Sprintf("decode line %d", valid+1))
		assert.Equal(t, valid, stats.Orders)
		require.Greater(t, out.Len(), 4096)
		require.True(t, strings.HasSuffix(out.String(), "\n"), "output ends mid-line")

		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		require.Len(t, lines, valid)
		for i, l := range lines {
			require.NoError(t, jx.DecodeStr(l).ObjBytes(func(d *jx.Decoder, _ []byte) error {
				return d.Skip()
			}), "line %d: %s", i+1, l)
		}
	})
}

func TestProcessor_Run_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Processor{Evaluator: discount.NewCalculator(), Today: december15}
	_, err := p.Run(ctx, strings.NewReader(`{"items":1,"total":"1"}`), io.Discard)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenFiles_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.jsonl.gz")

	w, err := OpenOutput(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, `{"items":21,"total":"200"}`+"\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2], "gzip magic")

	r, err := OpenInput(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	p := &Processor{Evaluator: discount.NewCalculator(), Today: december15}
	var out bytes.Buffer
	stats, err := p.Run(context.Background(), r, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ByRule[discount.RuleBulk])
	assert.Contains(t, out.String(), `"total":"170.00"`)
}

func TestOpenFiles_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	r, err := OpenInput(path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "{}\n", string(data))

	_, err = OpenInput(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}
