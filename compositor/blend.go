package compositor

// BlendingMode selects the per-channel combining function used when a layer
// is composited onto the accumulated output. Values match the document
// format's sparse encoding: 18 is intentionally unused.
type BlendingMode uint32

const (
	BlendNormal       BlendingMode = 0
	BlendMultiply     BlendingMode = 1
	BlendScreen       BlendingMode = 2
	BlendAdd          BlendingMode = 3
	BlendLighten      BlendingMode = 4
	BlendExclusion    BlendingMode = 5
	BlendDifference   BlendingMode = 6
	BlendSubtract     BlendingMode = 7
	BlendLinearBurn   BlendingMode = 8
	BlendColorDodge   BlendingMode = 9
	BlendColorBurn    BlendingMode = 10
	BlendOverlay      BlendingMode = 11
	BlendHardLight    BlendingMode = 12
	BlendColor        BlendingMode = 13
	BlendLuminosity   BlendingMode = 14
	BlendHue          BlendingMode = 15
	BlendSaturation   BlendingMode = 16
	BlendSoftLight    BlendingMode = 17
	BlendDarken       BlendingMode = 19
	BlendHardMix      BlendingMode = 20
	BlendVividLight   BlendingMode = 21
	BlendLinearLight  BlendingMode = 22
	BlendPinLight     BlendingMode = 23
	BlendLighterColor BlendingMode = 24
	BlendDarkerColor  BlendingMode = 25
	BlendDivide       BlendingMode = 26
)

// AllBlendingModes returns every defined blending mode in encoding order.
func AllBlendingModes() []BlendingMode {
	return []BlendingMode{
		BlendNormal,
		BlendMultiply,
		BlendScreen,
		BlendAdd,
		BlendLighten,
		BlendExclusion,
		BlendDifference,
		BlendSubtract,
		BlendLinearBurn,
		BlendColorDodge,
		BlendColorBurn,
		BlendOverlay,
		BlendHardLight,
		BlendColor,
		BlendLuminosity,
		BlendHue,
		BlendSaturation,
		BlendSoftLight,
		BlendDarken,
		BlendHardMix,
		BlendVividLight,
		BlendLinearLight,
		BlendPinLight,
		BlendLighterColor,
		BlendDarkerColor,
		BlendDivide,
	}
}

// BlendingModeFromU32 maps the document encoding to a BlendingMode.
// The second return value is false for the gap value 18 and anything
// above 26.
func BlendingModeFromU32(v uint32) (BlendingMode, bool) {
	switch v {
	case 18:
		return 0, false
	default:
		if v > 26 {
			return 0, false
		}
		return BlendingMode(v), true
	}
}

// ToU32 returns the document encoding of the mode.
func (m BlendingMode) ToU32() uint32 {
	return uint32(m)
}

// String returns the display name of the mode.
func (m BlendingMode) String() string {
	switch m {
	case BlendNormal:
		return "Normal"
	case BlendMultiply:
		return "Multiply"
	case BlendScreen:
		return "Screen"
	case BlendAdd:
		return "Add"
	case BlendLighten:
		return "Lighten"
	case BlendExclusion:
		return "Exclusion"
	case BlendDifference:
		return "Difference"
	case BlendSubtract:
		return "Subtract"
	case BlendLinearBurn:
		return "Linear Burn"
	case BlendColorDodge:
		return "Color Dodge"
	case BlendColorBurn:
		return "Color Burn"
	case BlendOverlay:
		return "Overlay"
	case BlendHardLight:
		return "Hard Light"
	case BlendColor:
		return "Color"
	case BlendLuminosity:
		return "Luminosity"
	case BlendHue:
		return "Hue"
	case BlendSaturation:
		return "Saturation"
	case BlendSoftLight:
		return "Soft Light"
	case BlendDarken:
		return "Darken"
	case BlendHardMix:
		return "Hard Mix"
	case BlendVividLight:
		return "Vivid Light"
	case BlendLinearLight:
		return "Linear Light"
	case BlendPinLight:
		return "Pin Light"
	case BlendLighterColor:
		return "Lighter Color"
	case BlendDarkerColor:
		return "Darker Color"
	case BlendDivide:
		return "Divide"
	default:
		return "Unknown"
	}
}
