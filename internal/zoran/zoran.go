// Package zoran converts between Unix time and the 32-bit "Zoran epoch"
// timestamp used on events and SSL expiration checks (spec §3, §9).
//
// startOfZoranEpoch is referenced from a header not present in the retrieved
// sources. Per the spec's open question we treat it as a named constant that
// must match across this controller and the worker fleet, rather than
// guessing at the original numeric value.
package zoran

import "math"

// StartOfZoranEpoch is the fixed anchor, in Unix seconds, that Zoran
// timestamps are relative to. Workers must agree on this exact value.
const StartOfZoranEpoch int64 = 1420070400 // 2015-01-01T00:00:00Z

// MaxZoran is the largest representable Zoran timestamp (2^32 - 1).
const MaxZoran uint32 = math.MaxUint32

// FromUnix converts a Unix timestamp to a Zoran timestamp, saturating low to
// 0 and high to 2^32-1.
func FromUnix(unixTs int64) uint32 {
	rel := unixTs - StartOfZoranEpoch
	if rel < 0 {
		return 0
	}
	if rel > int64(MaxZoran) {
		return MaxZoran
	}
	return uint32(rel)
}

// ToUnix converts a Zoran timestamp back to Unix seconds.
func ToUnix(zoranTs uint32) int64 {
	return StartOfZoranEpoch + int64(zoranTs)
}

// InRange reports whether a Unix timestamp falls within
// [StartOfZoranEpoch, StartOfZoranEpoch + 2^32), the valid range for
// /event/report's timestamp field (§6).
func InRange(unixTs int64) bool {
	if unixTs < StartOfZoranEpoch {
		return false
	}
	return unixTs-StartOfZoranEpoch <= int64(MaxZoran)
}
