package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBTC(t *testing.T) {
	tests := []struct {
		amount float64
		symbol bool
		want   string
	}{
		{0, false, "0"},
		{0, true, "0 ₿"},
		{1.5, false, "1.5"},
		{2, false, "2"},
		{0.00000001, false, "0.00000001"},
		{0.10000000, false, "0.1"},
		{1.23456789, true, "1.23456789 ₿"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BTC(tt.amount, tt.symbol))
	}
}

func TestUSD(t *testing.T) {
	assert.Equal(t, "$0.00", USD(0))
	assert.Equal(t, "$45,000.00", USD(45000))
	assert.Equal(t, "$1,234.57", USD(1234.567))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		delta time.Duration
		want  string
	}{
		{5 * time.Second, "5s ago"},
		{90 * time.Second, "1m ago"},
		{2 * time.Hour, "2h ago"},
		{49 * time.Hour, "2d ago"},
		{-3 * time.Second, "0s ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.delta), now))
	}
}
