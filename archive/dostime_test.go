package archive

import (
	"testing"
	"time"
)

func TestDOSTime_RoundTrip(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2024, 2, 29, 13, 45, 31, 0, time.UTC), time.Date(2024, 2, 29, 13, 45, 30, 0, time.UTC)},
		{time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)},
		{time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)), time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		d, c := DOSTime(tt.in)
		if got := FromDOSTime(d, c); !got.Equal(tt.want) {
			t.Errorf("round trip %v = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDOSTime_ZeroTime(t *testing.T) {
	d, c := DOSTime(time.Time{})
	if got := FromDOSTime(d, c); got.Year() != 1980 {
		t.Errorf("zero time = %v, want 1980 epoch", got)
	}
}
