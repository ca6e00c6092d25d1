// Package units formats the provider's megabyte quantities.
package units

import (
	"github.com/shopspring/decimal"
)

var (
	mbPerGB = decimal.NewFromInt(1024)
	mbPerTB = decimal.NewFromInt(1024 * 1024)
)

// FormatMB renders a size in megabytes as MB, GB, or TB, rounded to two
// decimal places with trailing zeros dropped. Zero or negative is "Unlimited".
func FormatMB(mb int64) string {
	if mb <= 0 {
		return "Unlimited"
	}
	v := decimal.NewFromInt(mb)
	switch {
	case v.LessThan(mbPerGB):
		return v.String() + " MB"
	case v.LessThan(mbPerTB):
		return v.Div(mbPerGB).Round(2).String() + " GB"
	default:
		return v.Div(mbPerTB).Round(2).String() + " TB"
	}
}

// FormatBandwidth renders a monthly bandwidth limit in megabytes.
func FormatBandwidth(mb int64) string {
	return FormatMB(mb)
}
