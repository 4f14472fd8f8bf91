// Package racetime converts between the "MM:SS.cc" time literals used by
// manual-entry tooling and milliseconds.
package racetime

import (
	"fmt"
	"strconv"
	"strings"
)

// Invalid is returned by Parse for a malformed time string.
// It is a sentinel, not an error: callers that accept time literals must
// check for it and reject the input without mutating anything.
const Invalid int64 = -1

// Parse converts "MM:SS.cc" (minutes, seconds, centiseconds) to total
// milliseconds. Returns Invalid if the string is malformed.
func Parse(s string) int64 {
	mmRest := strings.SplitN(s, ":", 2)
	if len(mmRest) != 2 {
		return Invalid
	}
	ssCC := strings.SplitN(mmRest[1], ".", 2)
	if len(ssCC) != 2 {
		return Invalid
	}
	minutes, err1 := strconv.Atoi(mmRest[0])
	seconds, err2 := strconv.Atoi(ssCC[0])
	centis, err3 := strconv.Atoi(ssCC[1])
	if err1 != nil || err2 != nil || err3 != nil || minutes < 0 || seconds < 0 || centis < 0 {
		return Invalid
	}
	return int64(minutes)*60000 + int64(seconds)*1000 + int64(centis)*10
}

// Format renders milliseconds as "MM:SS.cc"
func Format(ms float64) string {
	if ms < 0 {
		ms = 0
	}
	totalCentis := int64(ms / 10)
	minutes := totalCentis / 6000
	seconds := (totalCentis / 100) % 60
	centis := totalCentis % 100
	return fmt.Sprintf("%02d:%02d.%02d", minutes, seconds, centis)
}
