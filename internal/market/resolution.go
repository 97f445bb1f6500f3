package market

import (
	"fmt"
	"time"
)

// Resolution is the duration of one candle period.
type Resolution time.Duration

const (
	Minute1  = Resolution(time.Minute)
	Minute5  = Resolution(5 * time.Minute)
	Minute15 = Resolution(15 * time.Minute)
	Minute30 = Resolution(30 * time.Minute)
	Hour1    = Resolution(time.Hour)
	Hour4    = Resolution(4 * time.Hour)
	Day1     = Resolution(24 * time.Hour)
)

func (r Resolution) Duration() time.Duration { return time.Duration(r) }

func (r Resolution) String() string {
	d := time.Duration(r)
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}

// Aligned reports whether t is an exact multiple of the resolution since the Unix epoch.
func (r Resolution) Aligned(t time.Time) bool {
	if r <= 0 {
		return false
	}
	return t.UnixNano()%int64(r) == 0
}

// Floor returns the start of the period containing t.
func (r Resolution) Floor(t time.Time) time.Time {
	if r <= 0 {
		return t
	}
	n, d := t.UnixNano(), int64(r)
	n -= ((n % d) + d) % d
	return time.Unix(0, n).UTC()
}

// Next returns the start of the period following the one starting at t.
func (r Resolution) Next(t time.Time) time.Time {
	return t.Add(time.Duration(r))
}

// Ratio returns how many r periods make up one coarser period, or an error if
// coarser is not an integer multiple of r greater than one.
func (r Resolution) Ratio(coarser Resolution) (int, error) {
	if r <= 0 || coarser <= r || coarser%r != 0 {
		return 0, fmt.Errorf("resolution %s does not divide %s", r, coarser)
	}
	return int(coarser / r), nil
}
