package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRevRange(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		head     int
		want     string
		wantOK   bool
	}{
		{"both", "2", "5", 10, "5:2", true},
		{"only from", "3", "", 10, "tip:3", true},
		{"only to", "", "4", 10, "4:0", true},
		{"neither", "", "", 10, "tip:0", true},
		{"to clamped", "1", "99", 10, "10:1", true},
		{"tip resolves to head", "tip", "", 10, "tip:10", true},
		{"HEAD as to", "2", "HEAD", 10, "10:2", true},
		{"from beyond head", "11", "", 10, "", false},
		{"from beyond head with to", "50", "60", 10, "", false},
		{"hash revisions pass through", "abc123", "def456", 10, "def456:abc123", true},
		{"unknown head keeps tip", "", "HEAD", -1, "tip:0", true},
		{"unknown head does not clamp", "50", "60", -1, "60:50", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RevRange(tt.from, tt.to, tt.head)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, ok := DateRange(from, time.Time{}, now)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01 to 2024-03-15", got)

	got, ok = DateRange(time.Time{}, from, now)
	assert.True(t, ok)
	assert.Equal(t, "1971-01-01 to 2024-01-01", got)

	_, ok = DateRange(now, from, now)
	assert.False(t, ok)
}
