// Package timeline defines the declarative editing timeline consumed by
// the export pipeline: tracks of media clips, text and sticker overlays,
// and effects, plus the resolved media item table they reference.
package timeline

import "math"

// MediaKind classifies a media item
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// MediaItem is a resolved entry of the media table. Path is the durable
// local file; it may be empty for assets that only exist in memory or
// behind a URL, in which case the asset must be materialized before it
// can participate in a filter graph.
type MediaItem struct {
	ID        string    `yaml:"id"`
	Kind      MediaKind `yaml:"kind"`
	Path      string    `yaml:"path"`
	Duration  float64   `yaml:"duration"`
	HasAudio  bool      `yaml:"has_audio"`
	SourceURL string    `yaml:"source_url"`
	Data      []byte    `yaml:"-"`
}

// Library maps media item ids to their resolved entries
type Library map[string]*MediaItem

// Get returns the media item for id, or nil
func (l Library) Get(id string) *MediaItem {
	return l[id]
}

// Element is the closed set of things that can sit on a track. Every
// consumer type-switches over the four variants.
type Element interface {
	element()
	// Window returns the element's visibility interval [start, end) on
	// the timeline clock.
	Window() (start, end float64)
}

// Position is a center-anchored canvas position in percent (0..100)
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// MediaClip places a media item on the timeline. TrimStart and TrimEnd
// are seconds clipped from the source's head and tail; Duration is the
// source's intrinsic duration. The clip occupies
// [Start, Start+Duration-TrimStart-TrimEnd) of the timeline.
type MediaClip struct {
	MediaID   string  `yaml:"media_id"`
	Start     float64 `yaml:"start"`
	Duration  float64 `yaml:"duration"`
	TrimStart float64 `yaml:"trim_start"`
	TrimEnd   float64 `yaml:"trim_end"`
	// Volume is an audio gain multiplier; zero means unity.
	Volume float64 `yaml:"volume"`
}

func (MediaClip) element() {}

// Span returns the clip's trimmed length in seconds
func (c MediaClip) Span() float64 {
	span := c.Duration - c.TrimStart - c.TrimEnd
	if span < 0 {
		return 0
	}
	return span
}

func (c MediaClip) Window() (float64, float64) {
	return c.Start, c.Start + c.Span()
}

// TextOverlay draws styled text during [Start, End) of the timeline clock
type TextOverlay struct {
	Content    string   `yaml:"content"`
	FontSize   int      `yaml:"font_size"`
	FontFamily string   `yaml:"font_family"`
	Color      string   `yaml:"color"`
	Position   Position `yaml:"position"`
	Start      float64  `yaml:"start"`
	End        float64  `yaml:"end"`
}

func (TextOverlay) element() {}

func (t TextOverlay) Window() (float64, float64) {
	return t.Start, t.End
}

// StickerOverlay composites a still image during [Start, End). Size is a
// percentage of the canvas's shorter side; Position is center-anchored
// in canvas percent; ZIndex orders stickers, higher draws on top.
type StickerOverlay struct {
	ID       string   `yaml:"id"`
	MediaID  string   `yaml:"media_id"`
	Position Position `yaml:"position"`
	Size     float64  `yaml:"size"`
	Rotation float64  `yaml:"rotation"`
	Opacity  float64  `yaml:"opacity"`
	ZIndex   int      `yaml:"z_index"`
	Start    float64  `yaml:"start"`
	End      float64  `yaml:"end"`
}

func (StickerOverlay) element() {}

func (s StickerOverlay) Window() (float64, float64) {
	return s.Start, s.End
}

// Effect applies a visual effect during [Start, End); a zero End means
// the effect covers the whole timeline.
type Effect struct {
	Kind      EffectKind `yaml:"kind"`
	Intensity float64    `yaml:"intensity"`
	Start     float64    `yaml:"start"`
	End       float64    `yaml:"end"`
}

func (Effect) element() {}

func (e Effect) Window() (float64, float64) {
	if e.End <= e.Start {
		return e.Start, math.Inf(1)
	}
	return e.Start, e.End
}

// Track is an ordered set of elements; later tracks draw on top
type Track struct {
	Name     string    `yaml:"name"`
	Elements []Element `yaml:"-"`
}

// Timeline is the ordered set of tracks of one project
type Timeline struct {
	Tracks []Track
}

// Duration returns the latest element end time. Open-ended effect
// windows do not extend the timeline.
func (t *Timeline) Duration() float64 {
	var max float64
	for _, track := range t.Tracks {
		for _, el := range track.Elements {
			_, end := el.Window()
			if math.IsInf(end, 1) {
				continue
			}
			if end > max {
				max = end
			}
		}
	}
	return max
}

// Clips returns all media clips in track order
func (t *Timeline) Clips() []MediaClip {
	var out []MediaClip
	for _, track := range t.Tracks {
		for _, el := range track.Elements {
			if c, ok := el.(MediaClip); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Stickers returns all sticker overlays in track order
func (t *Timeline) Stickers() []StickerOverlay {
	var out []StickerOverlay
	for _, track := range t.Tracks {
		for _, el := range track.Elements {
			if s, ok := el.(StickerOverlay); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Texts returns all text overlays in track order
func (t *Timeline) Texts() []TextOverlay {
	var out []TextOverlay
	for _, track := range t.Tracks {
		for _, el := range track.Elements {
			if txt, ok := el.(TextOverlay); ok {
				out = append(out, txt)
			}
		}
	}
	return out
}

// Effects returns all effects in track order
func (t *Timeline) Effects() []Effect {
	var out []Effect
	for _, track := range t.Tracks {
		for _, el := range track.Elements {
			if e, ok := el.(Effect); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

// Overlaps reports whether two timeline intervals intersect
func Overlaps(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart < bEnd && bStart < aEnd
}
