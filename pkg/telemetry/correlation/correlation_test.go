package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	ctx, cid := EnsureCorrelationID(ctx)
	require.Equal(t, "abc", cid)
	require.Equal(t, "abc", ExtractCorrelationID(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(context.Background())
	require.Len(t, cid, 26)
	require.Equal(t, cid, ExtractCorrelationID(ctx))
}

func TestFromHeader(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: " req-1 ", want: "req-1"},
		{in: "job:daily-invoice.01_ABC", want: "job:daily-invoice.01_ABC"},
		{in: "", want: ""},
		{in: "has space", want: ""},
		{in: "line\nbreak", want: ""},
		{in: strings.Repeat("a", MaxLength+1), want: ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FromHeader(tc.in), "input %q", tc.in)
	}
}
