package timeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaClipSpanAndWindow(t *testing.T) {
	clip := MediaClip{Start: 3, Duration: 10, TrimStart: 2, TrimEnd: 1}
	assert.Equal(t, 7.0, clip.Span())

	start, end := clip.Window()
	assert.Equal(t, 3.0, start)
	assert.Equal(t, 10.0, end)
}

func TestMediaClipOverTrimmedSpanIsZero(t *testing.T) {
	clip := MediaClip{Duration: 4, TrimStart: 3, TrimEnd: 3}
	assert.Equal(t, 0.0, clip.Span())
}

func TestEffectWindowOpenEnded(t *testing.T) {
	start, end := Effect{Start: 2}.Window()
	assert.Equal(t, 2.0, start)
	assert.True(t, math.IsInf(end, 1))

	start, end = Effect{Start: 2, End: 5}.Window()
	assert.Equal(t, 2.0, start)
	assert.Equal(t, 5.0, end)
}

func TestTimelineDuration(t *testing.T) {
	tl := &Timeline{Tracks: []Track{
		{Elements: []Element{
			MediaClip{Start: 0, Duration: 8, TrimEnd: 2},
			TextOverlay{Start: 1, End: 9.5},
		}},
		{Elements: []Element{
			// Open-ended effects never stretch the timeline.
			Effect{Kind: EffectGrayscale, Start: 0},
		}},
	}}
	assert.Equal(t, 9.5, tl.Duration())
}

func TestTimelineAccessorsPreserveTrackOrder(t *testing.T) {
	tl := &Timeline{Tracks: []Track{
		{Elements: []Element{MediaClip{MediaID: "a"}, StickerOverlay{ID: "s1"}}},
		{Elements: []Element{MediaClip{MediaID: "b"}, TextOverlay{Content: "hi"}, Effect{Kind: EffectBlur}}},
	}}

	clips := tl.Clips()
	assert.Len(t, clips, 2)
	assert.Equal(t, "a", clips[0].MediaID)
	assert.Equal(t, "b", clips[1].MediaID)

	assert.Len(t, tl.Stickers(), 1)
	assert.Len(t, tl.Texts(), 1)
	assert.Len(t, tl.Effects(), 1)
}

func TestOverlaps(t *testing.T) {
	assert.True(t, Overlaps(0, 5, 4, 8))
	assert.True(t, Overlaps(4, 8, 0, 5))
	// Touching intervals do not overlap: [0,5) and [5,8).
	assert.False(t, Overlaps(0, 5, 5, 8))
	assert.False(t, Overlaps(0, 2, 3, 4))
}

func TestFilterExpressionKnownKinds(t *testing.T) {
	for _, tc := range []struct {
		effect Effect
		want   string
	}{
		{Effect{Kind: EffectGrayscale}, "hue=s=0"},
		{Effect{Kind: EffectInvert}, "negate"},
		{Effect{Kind: EffectBlur, Intensity: 4}, "gblur=sigma=4.00"},
		{Effect{Kind: EffectBlur}, "gblur=sigma=2.00"},
		{Effect{Kind: EffectBrightness, Intensity: 0.2}, "eq=brightness=0.20"},
		{Effect{Kind: EffectContrast}, "eq=contrast=1.00"},
		{Effect{Kind: EffectSaturation, Intensity: 1.5}, "eq=saturation=1.50"},
		{Effect{Kind: EffectHueRotate, Intensity: 90}, "hue=h=90.0"},
		{Effect{Kind: EffectVignette}, "vignette"},
	} {
		expr, ok := tc.effect.FilterExpression()
		assert.True(t, ok, "kind %s", tc.effect.Kind)
		assert.Equal(t, tc.want, expr)
	}
}

func TestFilterExpressionUnknownKind(t *testing.T) {
	_, ok := Effect{Kind: "chromatic-warp"}.FilterExpression()
	assert.False(t, ok)
}

func TestLibraryGet(t *testing.T) {
	lib := Library{"m1": {ID: "m1", Kind: MediaVideo}}
	assert.NotNil(t, lib.Get("m1"))
	assert.Nil(t, lib.Get("m2"))
}
