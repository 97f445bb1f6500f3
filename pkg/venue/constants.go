package venue

import (
	"fmt"
	"strings"
	"time"

	"marketfeed/internal/market"
)

// ResolutionMeta holds the API and storage representations of a candle resolution.
type ResolutionMeta struct {
	APIValue   string
	DBValue    string
	Resolution market.Resolution
}

// supportedResolutions maps every resolution the venue serves to its wire and DB names.
var supportedResolutions = []ResolutionMeta{
	{APIValue: "1", DBValue: "1m", Resolution: market.Minute1},
	{APIValue: "5", DBValue: "5m", Resolution: market.Minute5},
	{APIValue: "15", DBValue: "15m", Resolution: market.Minute15},
	{APIValue: "30", DBValue: "30m", Resolution: market.Minute30},
	{APIValue: "60", DBValue: "1h", Resolution: market.Hour1},
	{APIValue: "240", DBValue: "4h", Resolution: market.Hour4},
	{APIValue: "1D", DBValue: "1d", Resolution: market.Day1},
}

// LookupResolution returns the metadata for r.
func LookupResolution(r market.Resolution) (ResolutionMeta, error) {
	for _, m := range supportedResolutions {
		if m.Resolution == r {
			return m, nil
		}
	}
	return ResolutionMeta{}, fmt.Errorf("unsupported resolution: %s", r)
}

// ParseResolution accepts an API value ("5"), a DB value ("5m") or a Go duration ("5m0s").
func ParseResolution(s string) (ResolutionMeta, error) {
	s = strings.TrimSpace(s)
	for _, m := range supportedResolutions {
		if s == m.APIValue || strings.EqualFold(s, m.DBValue) {
			return m, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return LookupResolution(market.Resolution(d))
	}
	return ResolutionMeta{}, fmt.Errorf("invalid resolution: %s", s)
}
