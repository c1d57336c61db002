package export

import (
	"fmt"

	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

// Strategy is the execution plan class chosen for an export
type Strategy string

const (
	// StrategyDirectCopy remuxes the single source video without re-encoding.
	StrategyDirectCopy Strategy = "direct-copy"
	// StrategyDirectFilters re-encodes the single source video with a
	// filter graph carrying overlays and effects.
	StrategyDirectFilters Strategy = "direct-video-with-filters"
	// StrategyFrameRender rasterizes the timeline frame by frame and
	// encodes the resulting image sequence.
	StrategyFrameRender Strategy = "frame-rendering"
)

// Analysis is the derived, read-only classification of one export
// attempt. It is computed once per attempt and never mutated.
type Analysis struct {
	NeedsFrameRendering bool
	NeedsFilterEncoding bool
	CanUseDirectCopy    bool
	Strategy            Strategy
	Reason              string
}

// Analyze classifies the timeline into an export strategy. Pure
// function: no I/O, and identical inputs yield identical results.
func Analyze(tl *timeline.Timeline, media timeline.Library) Analysis {
	var (
		videoClips []timeline.MediaClip
		imageClip  bool
		audioClips int
	)

	for _, clip := range tl.Clips() {
		item := media.Get(clip.MediaID)
		if item == nil {
			continue
		}
		switch item.Kind {
		case timeline.MediaVideo:
			videoClips = append(videoClips, clip)
		case timeline.MediaImage:
			imageClip = true
		case timeline.MediaAudio:
			audioClips++
		}
	}

	stickers := tl.Stickers()
	texts := tl.Texts()
	effects := tl.Effects()

	a := Analysis{}

	// Rule 1: conditions that force frame-by-frame rasterization.
	switch {
	case imageClip:
		a.NeedsFrameRendering = true
		a.Reason = "timeline contains an image clip, which has no video stream to carry filters"
	case overlappingVideos(videoClips):
		a.NeedsFrameRendering = true
		a.Reason = "two or more video clips overlap in time and must be composited per frame"
	case hasInexpressibleEffect(effects):
		a.NeedsFrameRendering = true
		a.Reason = "an effect requires per-pixel compositing not expressible as an ffmpeg filter"
	}

	// Rule 2: overlays or effects need a re-encode with a filter graph,
	// unless frame rendering already owns the composition.
	if !a.NeedsFrameRendering && (len(texts) > 0 || len(stickers) > 0 || len(effects) > 0) {
		a.NeedsFilterEncoding = true
	}

	// Rule 3: direct copy requires a lone, locally resolvable video and
	// nothing to composite.
	if len(videoClips) == 1 && !a.NeedsFilterEncoding && !a.NeedsFrameRendering {
		if item := media.Get(videoClips[0].MediaID); item != nil && item.Path != "" {
			a.CanUseDirectCopy = true
		}
	}

	// Rule 4: strategy selection.
	switch {
	case a.CanUseDirectCopy:
		a.Strategy = StrategyDirectCopy
		a.Reason = "single video clip with no overlays or effects; stream copy suffices"

	case len(videoClips) == 1 && !a.NeedsFrameRendering && a.NeedsFilterEncoding &&
		hasLocalPath(media, videoClips[0]):
		a.Strategy = StrategyDirectFilters
		a.Reason = "single video clip with overlays/effects expressible as a filter graph"

	default:
		a.Strategy = StrategyFrameRender
		a.NeedsFrameRendering = true
		if a.Reason == "" {
			a.Reason = frameRenderReason(videoClips, media)
		}
	}

	return a
}

func frameRenderReason(videoClips []timeline.MediaClip, media timeline.Library) string {
	switch {
	case len(videoClips) == 0:
		return "no video clip provides a primary stream; the timeline must be rasterized"
	case len(videoClips) == 1 && !hasLocalPath(media, videoClips[0]):
		return "the video clip's media item has no local file path"
	default:
		return fmt.Sprintf("%d video clips cannot share a single primary input", len(videoClips))
	}
}

func hasLocalPath(media timeline.Library, clip timeline.MediaClip) bool {
	item := media.Get(clip.MediaID)
	return item != nil && item.Path != ""
}

func overlappingVideos(clips []timeline.MediaClip) bool {
	for i := 0; i < len(clips); i++ {
		aStart, aEnd := clips[i].Window()
		for j := i + 1; j < len(clips); j++ {
			bStart, bEnd := clips[j].Window()
			if timeline.Overlaps(aStart, aEnd, bStart, bEnd) {
				return true
			}
		}
	}
	return false
}

func hasInexpressibleEffect(effects []timeline.Effect) bool {
	for _, e := range effects {
		if _, ok := e.FilterExpression(); !ok {
			return true
		}
	}
	return false
}
