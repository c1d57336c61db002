package timeline

import "fmt"

// EffectKind names a visual effect
type EffectKind string

const (
	EffectGrayscale  EffectKind = "grayscale"
	EffectSepia      EffectKind = "sepia"
	EffectInvert     EffectKind = "invert"
	EffectBlur       EffectKind = "blur"
	EffectBrightness EffectKind = "brightness"
	EffectContrast   EffectKind = "contrast"
	EffectSaturation EffectKind = "saturation"
	EffectHueRotate  EffectKind = "hue-rotate"
	EffectVignette   EffectKind = "vignette"
)

// FilterExpression returns the ffmpeg filter string for the effect and
// whether the effect is expressible as an external filter at all.
// Unknown kinds are not expressible and force frame rendering.
func (e Effect) FilterExpression() (string, bool) {
	switch e.Kind {
	case EffectGrayscale:
		return "hue=s=0", true
	case EffectSepia:
		return "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131", true
	case EffectInvert:
		return "negate", true
	case EffectBlur:
		sigma := e.Intensity
		if sigma <= 0 {
			sigma = 2
		}
		return fmt.Sprintf("gblur=sigma=%.2f", sigma), true
	case EffectBrightness:
		return fmt.Sprintf("eq=brightness=%.2f", e.Intensity), true
	case EffectContrast:
		v := e.Intensity
		if v == 0 {
			v = 1
		}
		return fmt.Sprintf("eq=contrast=%.2f", v), true
	case EffectSaturation:
		v := e.Intensity
		if v == 0 {
			v = 1
		}
		return fmt.Sprintf("eq=saturation=%.2f", v), true
	case EffectHueRotate:
		return fmt.Sprintf("hue=h=%.1f", e.Intensity), true
	case EffectVignette:
		return "vignette", true
	default:
		return "", false
	}
}
