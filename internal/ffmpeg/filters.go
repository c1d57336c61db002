package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// Return self without adding filter - allows chaining to continue
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%g", fps))
	return fb
}

// Rotate adds a rotation filter for the given angle in degrees, expanding
// the output canvas to fit and keeping uncovered regions transparent.
func (fb *FilterBuilder) Rotate(degrees float64) *FilterBuilder {
	if degrees == 0 {
		return fb
	}
	rad := fmt.Sprintf("%.6f*PI/180", degrees)
	fb.filters = append(fb.filters,
		fmt.Sprintf("rotate=%s:c=none:ow=rotw(%s):oh=roth(%s)", rad, rad, rad))
	return fb
}

// Alpha multiplies the alpha channel by the given opacity (0..1)
func (fb *FilterBuilder) Alpha(opacity float64) *FilterBuilder {
	if opacity <= 0 || opacity >= 1 {
		return fb
	}
	fb.filters = append(fb.filters, "format=rgba",
		fmt.Sprintf("colorchannelmixer=aa=%.2f", opacity))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	if filter == "" {
		return fb
	}
	fb.filters = append(fb.filters, filter)
	return fb
}

// Empty reports whether no filters have been added
func (fb *FilterBuilder) Empty() bool {
	return len(fb.filters) == 0
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// BuildAll returns all filters as a slice
func (fb *FilterBuilder) BuildAll() []string {
	return fb.filters
}
