package segy

import "math"

// ibmToFloat32 converts a big-endian IBM System/360 single precision float.
func ibmToFloat32(bits uint32) float32 {
	if bits&0x7fffffff == 0 {
		return 0
	}
	exp := int((bits >> 24) & 0x7f)
	frac := float64(bits&0x00ffffff) / (1 << 24)
	v := frac * math.Pow(16, float64(exp-64))
	if bits>>31 == 1 {
		v = -v
	}
	return float32(v)
}

// float32ToIBM converts an IEEE float to IBM single precision, truncating
// digits that do not fit the 24-bit hexadecimal fraction.
func float32ToIBM(f float32) uint32 {
	if f == 0 || math.IsNaN(float64(f)) {
		return 0
	}
	var sign uint32
	v := float64(f)
	if v < 0 {
		sign = 1 << 31
		v = -v
	}
	if math.IsInf(v, 0) {
		return sign | 0x7fffffff
	}
	exp := 64
	for v >= 1 {
		v /= 16
		exp++
	}
	for v < 1.0/16 {
		v *= 16
		exp--
	}
	if exp < 0 {
		return 0
	}
	if exp > 127 {
		return sign | 0x7fffffff
	}
	frac := uint32(v * (1 << 24))
	return sign | uint32(exp)<<24 | frac&0x00ffffff
}
