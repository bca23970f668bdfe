// Package units provides wheel and angle conversions shared by the estimator,
// actuator and planner.
package units

import "math"

// WheelCircumference returns the rolling circumference in meters of a wheel
// with the given diameter in millimeters.
func WheelCircumference(diameterMM float64) float64 {
	return diameterMM / 1000 * math.Pi
}

// RPMToMPS converts a wheel speed in revolutions per minute to a linear
// speed in meters per second.
func RPMToMPS(rpm, circumference float64) float64 {
	return rpm / 60 * circumference
}

// MPSToTurnsPerSecond converts a linear wheel speed to wheel revolutions per
// second, the unit motor drivers take velocity setpoints in.
func MPSToTurnsPerSecond(mps, circumference float64) float64 {
	if circumference == 0 {
		return 0
	}
	return mps / circumference
}

// TurnsToMeters converts a number of wheel revolutions to distance travelled.
func TurnsToMeters(turns, circumference float64) float64 {
	return turns * circumference
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// WrapDeg180 wraps an angle in degrees into [-180, 180).
func WrapDeg180(deg float64) float64 {
	w := math.Mod(deg+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}
