// SPDX-License-Identifier: EPL-2.0

// Package utils holds small sample-format helpers shared by the decoders,
// the WAV writer and the asset loader.
package utils

// PCMScale returns the divisor that maps a signed integer sample of the
// given bit depth into [-1, 1). Unknown depths fall back to 16-bit.
func PCMScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 16:
		return 32768.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// PCMToFloat32 converts a signed integer sample into a float32 in [-1, 1).
func PCMToFloat32(v int, bitDepth int) float32 {
	return float32(v) / PCMScale(bitDepth)
}

// Float32ToPCM clamps x to [-1, 1] and scales it to a signed integer sample
// of the given bit depth. The positive peak maps to max-1 so 1.0 never wraps.
func Float32ToPCM(x float32, bitDepth int) int {
	x = Clamp(x)

	peak := PCMScale(bitDepth) - 1
	if bitDepth == 32 {
		// float32 cannot represent 2^31-1; go through float64.
		return int(float64(x) * 2147483647.0)
	}

	return int(x * peak)
}

// Float32ToInt16 is Float32ToPCM for 16-bit output.
func Float32ToInt16(x float32) int16 {
	return int16(Float32ToPCM(x, 16))
}

// Clamp limits x to [-1, 1].
func Clamp(x float32) float32 {
	if x > 1 {
		return 1
	} else if x < -1 {
		return -1
	}
	return x
}
