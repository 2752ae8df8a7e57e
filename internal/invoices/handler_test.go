package invoices

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListRequestFromQuery(t *testing.T) {
	req, err := listRequestFromQuery(url.Values{
		"status":    {"partial"},
		"search":    {"sinar"},
		"date_from": {"2025-01-01"},
		"date_to":   {"2025-03-31"},
		"limit":     {"25"},
		"offset":    {"50"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, *req.Status)
	require.Equal(t, "sinar", *req.Search)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *req.DateFrom)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), *req.DateTo)
	require.Equal(t, 25, req.Limit)
	require.Equal(t, 50, req.Offset)

	_, err = listRequestFromQuery(url.Values{"status": {"bogus"}})
	require.Error(t, err)

	// Malformed dates are dropped rather than failing the listing.
	req, err = listRequestFromQuery(url.Values{"date_from": {"01-01-2025"}})
	require.NoError(t, err)
	require.Nil(t, req.DateFrom)
}
