package compositor

import "math"

// Per-pixel compositing math, operating on premultiplied-alpha color in
// [0,1] floats. This file mirrors the blend switch in
// shaders/composite.wgsl; the two must stay in sync.

// comp attenuates a premultiplied channel by the complement of the other
// pixel's alpha. It is the building block of src-over compositing.
func comp(cv, alpha float32) float32 {
	return cv * (1.0 - alpha)
}

// blendPixel combines one premultiplied foreground pixel with one
// premultiplied background pixel and returns the premultiplied result
// channels. The alpha channel itself always composites src-over and is
// handled by the caller.
func blendPixel(mode BlendingMode, bg, fg [4]float32) [3]float32 {
	ab, as := bg[3], fg[3]

	// Un-premultiply so the blend functions see plain color values.
	var cb, cs [3]float32
	if ab > 0 {
		cb = [3]float32{bg[0] / ab, bg[1] / ab, bg[2] / ab}
	}
	if as > 0 {
		cs = [3]float32{fg[0] / as, fg[1] / as, fg[2] / as}
	}

	var b [3]float32
	switch mode {
	case BlendColor:
		b = setLum(cs, lum(cb))
	case BlendLuminosity:
		b = setLum(cb, lum(cs))
	case BlendHue:
		b = setLum(setSat(cs, sat(cb)), lum(cb))
	case BlendSaturation:
		b = setLum(setSat(cb, sat(cs)), lum(cb))
	case BlendLighterColor:
		if lum(cs) > lum(cb) {
			b = cs
		} else {
			b = cb
		}
	case BlendDarkerColor:
		if lum(cs) < lum(cb) {
			b = cs
		} else {
			b = cb
		}
	default:
		for i := 0; i < 3; i++ {
			b[i] = blendChannel(mode, cb[i], cs[i])
		}
	}

	var out [3]float32
	for i := 0; i < 3; i++ {
		out[i] = comp(fg[i], ab) + comp(bg[i], as) + ab*as*b[i]
	}
	return out
}

// blendChannel applies a separable blend function to a single
// un-premultiplied channel pair.
func blendChannel(mode BlendingMode, cb, cs float32) float32 {
	switch mode {
	case BlendNormal:
		return cs
	case BlendMultiply:
		return cb * cs
	case BlendScreen:
		return cb + cs - cb*cs
	case BlendAdd:
		return minf(1, cb+cs)
	case BlendLighten:
		return maxf(cb, cs)
	case BlendExclusion:
		return cb + cs - 2*cb*cs
	case BlendDifference:
		return absf(cb - cs)
	case BlendSubtract:
		return maxf(0, cb-cs)
	case BlendLinearBurn:
		return maxf(0, cb+cs-1)
	case BlendColorDodge:
		return colorDodge(cb, cs)
	case BlendColorBurn:
		return colorBurn(cb, cs)
	case BlendOverlay:
		return hardLight(cs, cb)
	case BlendHardLight:
		return hardLight(cb, cs)
	case BlendSoftLight:
		return softLight(cb, cs)
	case BlendDarken:
		return minf(cb, cs)
	case BlendHardMix:
		if vividLight(cb, cs) < 0.5 {
			return 0
		}
		return 1
	case BlendVividLight:
		return vividLight(cb, cs)
	case BlendLinearLight:
		return clampf(cb+2*cs-1, 0, 1)
	case BlendPinLight:
		if cs <= 0.5 {
			return minf(cb, 2*cs)
		}
		return maxf(cb, 2*cs-1)
	case BlendDivide:
		if cs == 0 {
			return 1
		}
		return minf(1, cb/cs)
	default:
		return cs
	}
}

func colorDodge(cb, cs float32) float32 {
	if cb == 0 {
		return 0
	}
	if cs == 1 {
		return 1
	}
	return minf(1, cb/(1-cs))
}

func colorBurn(cb, cs float32) float32 {
	if cb == 1 {
		return 1
	}
	if cs == 0 {
		return 0
	}
	return 1 - minf(1, (1-cb)/cs)
}

func hardLight(cb, cs float32) float32 {
	if cs <= 0.5 {
		return cb * cs * 2
	}
	// screen(cb, 2*cs-1)
	d := 2*cs - 1
	return cb + d - cb*d
}

func softLight(cb, cs float32) float32 {
	if cs <= 0.5 {
		return cb - (1-2*cs)*cb*(1-cb)
	}
	var d float32
	if cb <= 0.25 {
		d = ((16*cb-12)*cb + 4) * cb
	} else {
		d = sqrtf(cb)
	}
	return cb + (2*cs-1)*(d-cb)
}

func vividLight(cb, cs float32) float32 {
	if cs <= 0.5 {
		return colorBurn(cb, 2*cs)
	}
	return colorDodge(cb, 2*(cs-0.5))
}

// Luminosity coefficients and non-separable helpers follow the PDF/W3C
// compositing specification.

func lum(c [3]float32) float32 {
	return 0.3*c[0] + 0.59*c[1] + 0.11*c[2]
}

func clipColor(c [3]float32) [3]float32 {
	l := lum(c)
	n := minf(c[0], minf(c[1], c[2]))
	x := maxf(c[0], maxf(c[1], c[2]))
	if n < 0 {
		for i := 0; i < 3; i++ {
			c[i] = l + (c[i]-l)*l/(l-n)
		}
	}
	if x > 1 {
		for i := 0; i < 3; i++ {
			c[i] = l + (c[i]-l)*(1-l)/(x-l)
		}
	}
	return c
}

func setLum(c [3]float32, l float32) [3]float32 {
	d := l - lum(c)
	return clipColor([3]float32{c[0] + d, c[1] + d, c[2] + d})
}

func sat(c [3]float32) float32 {
	return maxf(c[0], maxf(c[1], c[2])) - minf(c[0], minf(c[1], c[2]))
}

func setSat(c [3]float32, s float32) [3]float32 {
	// Order the channel indices, then scale the middle channel
	// proportionally between the extremes.
	lo, mid, hi := 0, 1, 2
	if c[lo] > c[mid] {
		lo, mid = mid, lo
	}
	if c[mid] > c[hi] {
		mid, hi = hi, mid
	}
	if c[lo] > c[mid] {
		lo, mid = mid, lo
	}
	var out [3]float32
	if c[hi] > c[lo] {
		out[mid] = (c[mid] - c[lo]) * s / (c[hi] - c[lo])
		out[hi] = s
	}
	return out
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrtf(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func f32bits(v float32) uint32 {
	return math.Float32bits(v)
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
