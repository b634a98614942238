package units_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/units"
)

func TestToString(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		value    int64
		expected string
	}{
		{0, "0B"},
		{1000, "1000B"},
		{1024, "1.00KiB"},
		{8192, "8.00KiB"},
		{10_000_000, "9.54MiB"},
		{3 * 1024 * 1024 * 1024, "3.00GiB"},
		{2048 * 1024 * 1024 * 1024 * 1024, "2048.00TiB"},
	} {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, units.Bytes{Bytes: tc.value}.String())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(units.Bytes{Bytes: 2048})
	require.NoError(t, err)
	require.JSONEq(t, `{"bytes": 2048, "pretty": "2.00KiB"}`, string(data))
}
