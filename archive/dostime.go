package archive

import "time"

var (
	dosEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	dosLast  = time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)
)

// DOSTime packs t, taken in UTC, into an MS-DOS date and time. Resolution
// is two seconds; times outside 1980..2107 are clamped.
func DOSTime(t time.Time) (date, clock uint16) {
	t = t.UTC()
	switch {
	case t.Before(dosEpoch):
		t = dosEpoch
	case t.After(dosLast):
		t = dosLast
	}
	date = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	clock = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()>>1)
	return date, clock
}

// FromDOSTime is the inverse of DOSTime. The result is in UTC.
func FromDOSTime(date, clock uint16) time.Time {
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0xF),
		int(date&0x1F),
		int(clock>>11),
		int(clock>>5&0x3F),
		int(clock&0x1F)*2,
		0,
		time.UTC,
	)
}
