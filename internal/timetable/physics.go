package timetable

import (
	"math"
	"time"
)

const (
	// AccelerationMS2 is the fixed acceleration and braking magnitude.
	AccelerationMS2 = 0.35

	minCruiseKmh = 5.0
	minAccelMS2  = 0.1
)

// TravelTime returns the run time of a leg under a trapezoidal
// accelerate/cruise/brake profile. Legs too short to reach cruise speed use a
// symmetric triangular profile.
func TravelTime(distanceKm, vMaxKmh, accelMS2 float64) time.Duration {
	d := math.Max(0, distanceKm) * 1000
	if d == 0 {
		return 0
	}
	vmax := math.Max(minCruiseKmh, vMaxKmh) * 1000 / 3600
	a := math.Max(minAccelMS2, accelMS2)

	tAcc := vmax / a
	dAcc := 0.5 * a * tAcc * tAcc

	var seconds float64
	if 2*dAcc >= d {
		seconds = 2 * math.Sqrt(d/a)
	} else {
		seconds = 2*tAcc + (d-2*dAcc)/vmax
	}
	return time.Duration(math.Round(seconds)) * time.Second
}
