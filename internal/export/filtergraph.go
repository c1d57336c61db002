package export

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

// ExtraInput is a non-primary input the executor must attach, in order,
// before any audio inputs.
type ExtraInput struct {
	Path string
	Role string
}

// ResolvedSticker pairs a sticker overlay with its materialized local path
type ResolvedSticker struct {
	timeline.StickerOverlay
	Path string
}

// Plan is the compiled filter graph of one export attempt: the ordered
// filter-chain segments (effects, then stickers, then text) and the
// extra inputs they reference.
type Plan struct {
	segments    []string
	outputLabel string

	ExtraInputs []ExtraInput
}

// Empty reports whether the plan is a no-op
func (p *Plan) Empty() bool {
	return len(p.segments) == 0
}

// FilterGraph returns the complete -filter_complex expression
func (p *Plan) FilterGraph() string {
	return strings.Join(p.segments, ";")
}

// OutputLabel is the label of the final video stream, e.g. "[vout]",
// or empty for a no-op plan.
func (p *Plan) OutputLabel() string {
	return p.outputLabel
}

// AudioInputOffset is the ffmpeg input index of the first audio input:
// the primary input is 0 and stickers occupy 1..len(ExtraInputs).
func (p *Plan) AudioInputOffset() int {
	return 1 + len(p.ExtraInputs)
}

// GraphBuilder synthesizes the overlay/effect filter graph for the
// direct-video-with-filters strategy. The graph normalizes input 0 to
// the export canvas and composites everything on top of it.
type GraphBuilder struct {
	logger   zerolog.Logger
	settings Settings
	fontPath string
}

// NewGraphBuilder creates a graph builder for one export attempt
func NewGraphBuilder(logger zerolog.Logger, settings Settings, fontPath string) *GraphBuilder {
	return &GraphBuilder{
		logger:   logger.With().Str("component", "filtergraph").Logger(),
		settings: settings,
		fontPath: fontPath,
	}
}

// Build compiles the fixed-order graph: effects, then stickers sorted by
// z-order, then text overlays so text always composites above stickers.
// With nothing to composite it returns an empty, tolerated no-op plan.
// Under the frame-rendering strategy the compositor already bakes every
// clip, overlay, and effect into the frames, so the plan is always a
// no-op there: compositing anything again at encode time would apply it
// twice.
func (b *GraphBuilder) Build(strategy Strategy, effects []timeline.Effect, stickers []ResolvedSticker, texts []timeline.TextOverlay) *Plan {
	plan := &Plan{}

	if strategy == StrategyFrameRender {
		b.logger.Debug().Msg("frames carry the full composition, emitting no-op plan")
		return plan
	}

	effectChain := b.effectChain(effects)
	if effectChain == "" && len(stickers) == 0 && len(texts) == 0 {
		b.logger.Debug().Str("strategy", string(strategy)).Msg("nothing to composite, emitting no-op plan")
		return plan
	}

	sorted := make([]ResolvedSticker, len(stickers))
	copy(sorted, stickers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ZIndex < sorted[j].ZIndex
	})

	label := 0
	next := func() string {
		label++
		return fmt.Sprintf("[v%d]", label)
	}

	// Anchor: normalize the primary stream to the export canvas so every
	// percent-derived pixel coordinate below lands where it should even
	// when the source resolution differs from the canvas.
	current := next()
	plan.segments = append(plan.segments,
		fmt.Sprintf("[0:v]scale=%d:%d%s", b.settings.Width, b.settings.Height, current))

	// Effects segment.
	if effectChain != "" {
		out := next()
		plan.segments = append(plan.segments, current+effectChain+out)
		current = out
	}

	// Sticker segment: sticker i becomes extra input i+1 (input 0 is the
	// primary video).
	for i, sticker := range sorted {
		inputIndex := i + 1
		plan.ExtraInputs = append(plan.ExtraInputs, ExtraInput{Path: sticker.Path, Role: "sticker"})

		prepared := fmt.Sprintf("[stk%d]", i)
		plan.segments = append(plan.segments,
			fmt.Sprintf("[%d:v]%s%s", inputIndex, b.stickerChain(sticker), prepared))

		out := next()
		plan.segments = append(plan.segments,
			current+prepared+b.overlayStep(sticker)+out)
		current = out
	}

	// Text segment, always after stickers.
	for _, text := range texts {
		out := next()
		plan.segments = append(plan.segments, current+b.drawTextStep(text)+out)
		current = out
	}

	plan.outputLabel = current
	b.logger.Debug().
		Str("strategy", string(strategy)).
		Int("segments", len(plan.segments)).
		Int("extra_inputs", len(plan.ExtraInputs)).
		Msg("filter graph built")

	return plan
}

// effectChain folds all filter-expressible effects into one chain
func (b *GraphBuilder) effectChain(effects []timeline.Effect) string {
	fb := ffmpeg.NewFilterBuilder()
	for _, effect := range effects {
		expr, ok := effect.FilterExpression()
		if !ok {
			// The analyzer routes inexpressible effects to frame rendering;
			// here they are simply absent from the graph.
			continue
		}
		if gate := b.timeGate(effect.Window()); gate != "" {
			expr += ":enable=" + gate
		}
		fb.Custom(expr)
	}
	return fb.Build()
}

// stickerChain scales, rotates, and fades one sticker image. Pixel size
// is the sticker's size percentage of the shorter canvas side.
func (b *GraphBuilder) stickerChain(sticker ResolvedSticker) string {
	side := b.stickerSide(sticker)
	return ffmpeg.NewFilterBuilder().
		Scale(side, side).
		Rotate(sticker.Rotation).
		Alpha(sticker.Opacity).
		Build()
}

// overlayStep composites a prepared sticker at its center-anchored
// position, gated to its visibility window. The offset is expressed via
// overlay_w/overlay_h rather than the nominal sticker side: rotation
// expands the prepared image to its bounding box, and the expanded box
// must stay centered on the same anchor point.
func (b *GraphBuilder) overlayStep(sticker ResolvedSticker) string {
	cx := int(math.Round(sticker.Position.X / 100 * float64(b.settings.Width)))
	cy := int(math.Round(sticker.Position.Y / 100 * float64(b.settings.Height)))

	step := fmt.Sprintf("overlay=x=%d-overlay_w/2:y=%d-overlay_h/2", cx, cy)
	if gate := b.timeGate(sticker.Window()); gate != "" {
		step += ":enable=" + gate
	}
	return step
}

func (b *GraphBuilder) stickerSide(sticker ResolvedSticker) int {
	return int(math.Round(sticker.Size / 100 * float64(b.settings.ShorterSide())))
}

// drawTextStep renders one text overlay, gated to its window
func (b *GraphBuilder) drawTextStep(text timeline.TextOverlay) string {
	fontSize := text.FontSize
	if fontSize <= 0 {
		fontSize = 24
	}
	color := ffmpegColor(text.Color)
	if color == "" {
		color = "white"
	}

	x := int(math.Round(text.Position.X / 100 * float64(b.settings.Width)))
	y := int(math.Round(text.Position.Y / 100 * float64(b.settings.Height)))

	step := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:x=%d-text_w/2:y=%d-text_h/2",
		escapeDrawText(text.Content), fontSize, color, x, y)
	if b.fontPath != "" {
		step += fmt.Sprintf(":fontfile='%s'", escapeDrawText(b.fontPath))
	}
	if gate := b.timeGate(text.Window()); gate != "" {
		step += ":enable=" + gate
	}
	return step
}

// timeGate returns the enable expression restricting a step to
// [start, end) of output time, or empty when the window spans the
// entire export.
func (b *GraphBuilder) timeGate(start, end float64) string {
	if start <= 0 && (end >= b.settings.Duration || math.IsInf(end, 1)) {
		return ""
	}
	if end >= b.settings.Duration || math.IsInf(end, 1) {
		return fmt.Sprintf("'gte(t,%.3f)'", start)
	}
	return fmt.Sprintf("'gte(t,%.3f)*lt(t,%.3f)'", start, end)
}

// escapeDrawText escapes characters that break drawtext expressions
func escapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

// ffmpegColor converts "#RRGGBB" to ffmpeg's 0xRRGGBB form; named
// colors pass through.
func ffmpegColor(c string) string {
	if strings.HasPrefix(c, "#") {
		return "0x" + strings.TrimPrefix(c, "#")
	}
	return c
}
