package streamctx

import "testing"

func TestNamers(t *testing.T) {
	tests := []struct {
		namer VolumeNamer
		base  string
		n     int
		want  string
	}{
		{DefaultNamer, "data.cab", 0, "data.cab"},
		{DefaultNamer, "data.cab", 1, "data.cab.1"},
		{DefaultNamer, "data.cab", 12, "data.cab.12"},
		{NumberedNamer, "data.zip", 0, "data.001.zip"},
		{NumberedNamer, "data.zip", 9, "data.010.zip"},
		{NumberedNamer, "noext", 1, "noext.002"},
	}
	for _, tt := range tests {
		if got := tt.namer(tt.base, tt.n); got != tt.want {
			t.Errorf("namer(%q, %d) = %q, want %q", tt.base, tt.n, got, tt.want)
		}
	}
}
