// Package f16 implements the half-width storage encodings of the reference
// engine: IEEE-754 binary16 and bfloat16. Arithmetic always runs in
// float32; these representations exist at rest only.
package f16

import "math"

// Bits is a raw IEEE-754 binary16 pattern.
//
// Layout:
//
//	sign: 1 bit
//	exp:  5 bits (bias 15)
//	frac: 10 bits
type Bits uint16

// BBits is a raw bfloat16 pattern: the upper sixteen bits of a float32
// (1 sign, 8 exponent, 7 fraction).
type BBits uint16

const (
	signMask Bits = 0x8000
	expMask  Bits = 0x7C00
	fracMask Bits = 0x03FF

	f32ExpMask  uint32 = 0x7F800000
	f32FracMask uint32 = 0x007FFFFF
)

// ToFloat32 widens a binary16 pattern to float32. The conversion is exact.
func ToFloat32(h Bits) float32 {
	sign := uint32(h&signMask) << 16
	exp := uint32(h&expMask) >> 10
	frac := uint32(h & fracMask)

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign) // signed zero
		}
		// Subnormal: renormalize into a float32 normal. Binary16
		// subnormals carry exponent -14 and no implicit leading one.
		e := int32(-14)
		m := frac
		for (m & 0x0400) == 0 {
			m <<= 1
			e--
		}
		m &= 0x03FF
		return math.Float32frombits(sign | uint32(int32(127)+e)<<23 | m<<13)
	case 0x1F:
		if frac == 0 {
			return math.Float32frombits(sign | f32ExpMask)
		}
		return math.Float32frombits(sign | f32ExpMask | (frac << 13))
	default:
		return math.Float32frombits(sign | uint32(int32(exp)-15+127)<<23 | frac<<13)
	}
}

// FromFloat32 narrows a float32 to binary16, rounding to nearest with ties
// to even. Values beyond the binary16 range become infinities.
func FromFloat32(f float32) Bits {
	bits := math.Float32bits(f)
	sign := Bits((bits >> 16) & uint32(signMask))
	exp := int32((bits & f32ExpMask) >> 23)
	frac := bits & f32FracMask

	if exp == 0xFF {
		if frac == 0 {
			return sign | expMask
		}
		// Keep a non-zero quiet payload so NaN survives the trip.
		payload := Bits(frac>>13) | 0x0200
		return sign | expMask | (payload & fracMask)
	}

	if exp == 0 {
		// Float32 subnormals are far below binary16 resolution.
		return sign
	}

	e16 := exp - 127 + 15

	if e16 >= 0x1F {
		return sign | expMask
	}

	if e16 <= 0 {
		if e16 < -10 {
			return sign
		}
		// Build a subnormal: explicit leading one, shift into 10 bits.
		mant := frac | 0x00800000
		shift := uint32(1-e16) + 13
		m := mant >> shift
		rem := mant & (uint32(1)<<shift - 1)
		half := uint32(1) << (shift - 1)
		if rem > half || (rem == half && m&1 == 1) {
			m++
		}
		return sign | Bits(m)
	}

	m := frac >> 13
	rem := frac & 0x1FFF
	if rem > 0x1000 || (rem == 0x1000 && m&1 == 1) {
		m++
		if m == 0x0400 {
			m = 0
			e16++
			if e16 >= 0x1F {
				return sign | expMask
			}
		}
	}

	return sign | Bits(uint32(e16)<<10) | Bits(m)
}

// BToFloat32 widens a bfloat16 pattern to float32. The conversion is exact.
func BToFloat32(b BBits) float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// BFromFloat32 narrows a float32 to bfloat16, rounding to nearest with
// ties to even.
func BFromFloat32(f float32) BBits {
	bits := math.Float32bits(f)
	if bits&f32ExpMask == f32ExpMask && bits&f32FracMask != 0 {
		// Truncation could zero the payload; force a quiet NaN.
		return BBits(bits>>16) | 0x0040
	}
	return BBits((bits + 0x7FFF + (bits>>16)&1) >> 16)
}

// Decode widens binary16 patterns into dst, which must hold len(src).
func Decode(dst []float32, src []Bits) {
	for i := range src {
		dst[i] = ToFloat32(src[i])
	}
}

// Encode narrows float32 values into dst, which must hold len(src).
func Encode(dst []Bits, src []float32) {
	for i := range src {
		dst[i] = FromFloat32(src[i])
	}
}

// BDecode widens bfloat16 patterns into dst, which must hold len(src).
func BDecode(dst []float32, src []BBits) {
	for i := range src {
		dst[i] = BToFloat32(src[i])
	}
}

// BEncode narrows float32 values into dst, which must hold len(src).
func BEncode(dst []BBits, src []float32) {
	for i := range src {
		dst[i] = BFromFloat32(src[i])
	}
}
