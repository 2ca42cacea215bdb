package pagination

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePageSize(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		opts    Options
		want    int
		wantErr bool
	}{
		{name: "package default", want: DefaultPageSize},
		{name: "caller default", opts: Options{DefaultPageSize: 25}, want: 25},
		{name: "default above ceiling", opts: Options{DefaultPageSize: 80, MaxPageSize: 50}, want: 50},
		{name: "explicit", raw: "30", opts: Options{MaxPageSize: 40}, want: 30},
		{name: "clamped", raw: "400", opts: Options{MaxPageSize: 40}, want: 40},
		{name: "package ceiling", raw: "1000", want: DefaultMaxPageSize},
		{name: "not a number", raw: "ten", wantErr: true},
		{name: "zero", raw: "0", wantErr: true},
		{name: "negative", raw: "-3", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{}
			if tc.raw != "" {
				values.Set("pageSize", tc.raw)
			}
			params, err := Parse(values, tc.opts)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidPageSize)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, params.PageSize)
			require.Nil(t, params.Cursor)
		})
	}
}

func TestPageTokenRoundTripThroughRequest(t *testing.T) {
	placed := time.Date(2024, 6, 1, 8, 30, 0, 0, time.FixedZone("IST", 19800))
	token, err := EncodeToken(Cursor{CreatedAt: placed, ID: "ord_01"})
	require.NoError(t, err)

	params, err := FromRequest(httptest.NewRequest("GET", "/orders?pageSize=5&pageToken="+token, nil), Options{})
	require.NoError(t, err)
	require.Equal(t, 5, params.PageSize)
	require.Equal(t, token, params.PageToken)
	require.NotNil(t, params.Cursor)
	require.Equal(t, "ord_01", params.Cursor.ID)
	require.True(t, params.Cursor.CreatedAt.Equal(placed))
	require.Equal(t, time.UTC, params.Cursor.CreatedAt.Location())
}

func TestEncodeZeroCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestParseRejectsBadTokens(t *testing.T) {
	// "e30" is base64 for "{}", which decodes to an incomplete cursor.
	for _, token := range []string{"!!!", "e30", "bm90LWpzb24"} {
		_, err := Parse(url.Values{"pageToken": {token}}, Options{})
		require.ErrorIs(t, err, ErrInvalidPageToken, "token %q", token)
	}
}
