package control

// ClampFloat clamps value between min and max
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt clamps value between min and max
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Scale maps value linearly from [inLo, inHi] onto [outLo, outHi] in full
// floating precision. Value is first clamped to the input domain, so the
// result never extrapolates.
func Scale(value, inLo, inHi, outLo, outHi float64) float64 {
	if inHi == inLo {
		return outLo
	}
	v := ClampFloat(value, min(inLo, inHi), max(inLo, inHi))
	return (v-inLo)*(outHi-outLo)/(inHi-inLo) + outLo
}

// ScaleTrunc is the integer form of Scale used for duty values: the input is
// clamped, truncated to a whole number, and the map is evaluated in integer
// arithmetic, truncating toward zero.
func ScaleTrunc(value, inLo, inHi, outLo, outHi float64) int {
	if inHi == inLo {
		return int(outLo)
	}
	v := int64(ClampFloat(value, min(inLo, inHi), max(inLo, inHi)))
	il, ih := int64(inLo), int64(inHi)
	ol, oh := int64(outLo), int64(outHi)
	if ih == il {
		return int(ol)
	}
	return int((v-il)*(oh-ol)/(ih-il) + ol)
}

func scaleRange(value float64, in, out Range) float64 {
	return Scale(value, in.Lo, in.Hi, out.Lo, out.Hi)
}

// BoolToFloat converts bool to float64 (for CAN encoding)
func BoolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
