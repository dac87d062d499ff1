package rtsearch

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

const mjdEpochOffset = 2400000.5

// MJDToTime converts a Modified Julian Date to a UTC time.Time, the way the
// teacher converts GSF's yyyy/ddd reference times via meeus/julian.
func MJDToTime(mjd float64) time.Time {
	return julian.JDToTime(mjd + mjdEpochOffset)
}

// TimeToMJD converts a UTC time.Time to a Modified Julian Date.
func TimeToMJD(t time.Time) float64 {
	return julian.TimeToJD(t) - mjdEpochOffset
}

// AddSeconds advances an MJD timestamp by the given number of seconds.
func AddSeconds(mjd, seconds float64) float64 {
	return mjd + seconds/86400.0
}
