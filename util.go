package main

import (
	"crypto/rand"
	"encoding/hex"
	"math"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GeneratePilotName creates a fallback display name like "Pilot_a3f2c1"
func GeneratePilotName() string {
	return "Pilot_" + GenerateID(3)
}

// Clamp restricts v to [min, max]. NaN clamps to min.
func Clamp(v, min, max float64) float64 {
	if v < min || math.IsNaN(v) {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// AngleToVector returns the unit vector for a heading in radians
func AngleToVector(angle float64) (float64, float64) {
	return math.Cos(angle), math.Sin(angle)
}

// round1 rounds to one decimal place for the wire
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
