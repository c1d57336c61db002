package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
	"github.com/Quriosity-agent/qcut-sub012/pkg/util"
)

// FrameFilterFunc applies a filter chain to a single frame file
type FrameFilterFunc func(ctx context.Context, input, output, filter string) error

// FrameExtractFunc decodes one source frame at a timestamp into a file
type FrameExtractFunc func(ctx context.Context, input, output string, timestamp float64) error

// Compositor rasterizes the timeline at the output frame rate for the
// frame-rendering strategy. Each visible element is drawn in track
// order into an off-screen surface; the raw frame is written to
// raw_frame-%04d.png and post-filtered into frame-%04d.png. A failed
// per-frame filter never aborts the export: the raw frame is copied
// unfiltered to the final name.
type Compositor struct {
	logger       zerolog.Logger
	session      *Session
	settings     Settings
	tl           *timeline.Timeline
	media        timeline.Library
	stickerPaths map[string]string
	fontPath     string

	// FilterFrame and ExtractFrame default to ffmpeg invocations and are
	// replaceable in tests.
	FilterFrame  FrameFilterFunc
	ExtractFrame FrameExtractFunc

	imageCache map[string]image.Image
	faceCache  map[int]font.Face
	cacheMu    sync.Mutex
}

// NewCompositor creates a compositor for one export attempt.
// stickerPaths is the materializer's output; stickers missing from it
// were dropped and are not drawn.
func NewCompositor(logger zerolog.Logger, ff *ffmpeg.Executor, session *Session, settings Settings, tl *timeline.Timeline, media timeline.Library, stickerPaths map[string]string, fontPath string) *Compositor {
	c := &Compositor{
		logger:       logger.With().Str("component", "compositor").Logger(),
		session:      session,
		settings:     settings,
		tl:           tl,
		media:        media,
		stickerPaths: stickerPaths,
		fontPath:     fontPath,
		imageCache:   make(map[string]image.Image),
		faceCache:    make(map[int]font.Face),
	}
	if ff != nil {
		c.FilterFrame = ff.FilterImage
		c.ExtractFrame = ff.ExtractFrame
	}
	return c
}

type renderedFrame struct {
	index int
	img   *image.RGBA
}

// RenderFrames rasterizes every output frame and returns the frame
// count. Rasterization and filtering/writing are pipelined, but frames
// are written strictly in ascending index order since the executor's
// primary input depends on contiguous numbering. onFrame, when set, is
// called after each frame is finalized.
func (c *Compositor) RenderFrames(ctx context.Context, onFrame func(index, total int)) (int, error) {
	total := int(math.Round(c.settings.Duration * c.settings.FPS))
	if total <= 0 {
		return 0, newError(KindAnalysisImpossible, "render frames",
			fmt.Errorf("no frames to produce for duration %.3fs at %.3g fps", c.settings.Duration, c.settings.FPS))
	}

	c.logger.Info().
		Int("frames", total).
		Float64("fps", c.settings.FPS).
		Msg("rasterizing timeline")

	frames := make(chan renderedFrame, 2)

	g, ctx := errgroup.WithContext(ctx)

	// Rasterize frame k+1 while frame k is being filtered and written;
	// the channel preserves ascending order.
	g.Go(func() error {
		defer close(frames)
		for k := 0; k < total; k++ {
			t := float64(k) / c.settings.FPS
			img, err := c.rasterize(ctx, k, t)
			if err != nil {
				return err
			}
			select {
			case frames <- renderedFrame{index: k, img: img}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for frame := range frames {
			if err := c.writeFrame(ctx, frame); err != nil {
				return err
			}
			if onFrame != nil {
				onFrame(frame.index, total)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return 0, newError(KindCancelled, "render frames", ctx.Err())
		}
		return 0, err
	}

	c.logger.Info().Int("frames", total).Msg("frame rasterization complete")
	return total, nil
}

// writeFrame persists the raw frame and applies the per-frame post
// filter with the copy-raw fallback.
func (c *Compositor) writeFrame(ctx context.Context, frame renderedFrame) error {
	rawPath := c.session.RawFramePath(frame.index)
	finalPath := c.session.FramePath(frame.index)

	if err := writePNG(rawPath, frame.img); err != nil {
		return newError(KindSessionIO, "write raw frame", err)
	}

	t := float64(frame.index) / c.settings.FPS
	filter := c.effectFilterAt(t)
	if filter == "" || c.FilterFrame == nil {
		if err := util.CopyFile(rawPath, finalPath); err != nil {
			return newError(KindSessionIO, "finalize frame", err)
		}
		return nil
	}

	if err := c.FilterFrame(ctx, rawPath, finalPath, filter); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A cosmetic filter failure is never worth the whole export.
		c.logger.Warn().Err(err).
			Int("frame", frame.index).
			Str("filter", filter).
			Msg("per-frame filter failed, substituting raw frame")
		if err := util.CopyFile(rawPath, finalPath); err != nil {
			return newError(KindSessionIO, "substitute raw frame", err)
		}
	}
	return nil
}

// effectFilterAt folds the filter-expressible effects active at t into
// a single chain for the per-frame invocation.
func (c *Compositor) effectFilterAt(t float64) string {
	fb := ffmpeg.NewFilterBuilder()
	for _, effect := range c.tl.Effects() {
		start, end := effect.Window()
		if t < start || t >= end {
			continue
		}
		if expr, ok := effect.FilterExpression(); ok {
			fb.Custom(expr)
		}
	}
	return fb.Build()
}

// rasterize draws every element visible at time t, in track order, into
// an off-screen surface at export resolution.
func (c *Compositor) rasterize(ctx context.Context, index int, t float64) (*image.RGBA, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, c.settings.Width, c.settings.Height))
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	for _, track := range c.tl.Tracks {
		for _, el := range track.Elements {
			start, end := el.Window()
			if t < start || t >= end {
				continue
			}

			switch v := el.(type) {
			case timeline.MediaClip:
				c.drawClip(ctx, canvas, v, index, t)
			case timeline.StickerOverlay:
				c.drawSticker(canvas, v)
			case timeline.TextOverlay:
				c.drawText(canvas, v)
			case timeline.Effect:
				// Applied per frame by the post-filter step.
			}
		}
	}

	return canvas, nil
}

// drawClip rasterizes one media clip frame. Video sources are decoded
// through a single-frame extraction; a failed extraction skips the clip
// for this frame rather than aborting.
func (c *Compositor) drawClip(ctx context.Context, canvas *image.RGBA, clip timeline.MediaClip, index int, t float64) {
	item := c.media.Get(clip.MediaID)
	if item == nil || item.Path == "" || item.Kind == timeline.MediaAudio {
		return
	}

	var img image.Image
	switch item.Kind {
	case timeline.MediaImage:
		img = c.cachedImage(item.Path)

	case timeline.MediaVideo:
		if c.ExtractFrame == nil {
			return
		}
		srcT := t - clip.Start + clip.TrimStart
		tmp := filepath.Join(c.session.FrameDir, fmt.Sprintf("src-%04d.png", index))
		if err := c.ExtractFrame(ctx, item.Path, tmp, srcT); err != nil {
			c.logger.Warn().Err(err).
				Str("media", item.ID).
				Int("frame", index).
				Msg("source frame extraction failed, skipping clip for this frame")
			return
		}
		img = loadImage(tmp)
		_ = os.Remove(tmp)
	}

	if img == nil {
		return
	}
	drawFitted(canvas, img)
}

// drawSticker scales, rotates, and alpha-blends one sticker at its
// center-anchored position. Mirrors the filter-graph math so both
// strategies place stickers identically.
func (c *Compositor) drawSticker(canvas *image.RGBA, sticker timeline.StickerOverlay) {
	path, ok := c.stickerPaths[sticker.ID]
	if !ok {
		return
	}
	src := c.cachedImage(path)
	if src == nil {
		return
	}

	side := int(math.Round(sticker.Size / 100 * float64(c.settings.ShorterSide())))
	if side <= 0 {
		return
	}

	var rendered image.Image
	if sticker.Rotation != 0 {
		rendered = rotateScale(src, side, sticker.Rotation)
	} else {
		rendered = resize.Resize(uint(side), uint(side), src, resize.Bilinear)
	}

	cx := int(math.Round(sticker.Position.X / 100 * float64(c.settings.Width)))
	cy := int(math.Round(sticker.Position.Y / 100 * float64(c.settings.Height)))
	bounds := rendered.Bounds()
	at := image.Pt(cx-bounds.Dx()/2, cy-bounds.Dy()/2)

	mask := image.Image(nil)
	if sticker.Opacity > 0 && sticker.Opacity < 1 {
		mask = image.NewUniform(color.Alpha{A: uint8(math.Round(sticker.Opacity * 255))})
	}
	draw.DrawMask(canvas, bounds.Sub(bounds.Min).Add(at), rendered, bounds.Min, mask, image.Point{}, draw.Over)
}

// drawText renders one text overlay centered on its anchor
func (c *Compositor) drawText(canvas *image.RGBA, text timeline.TextOverlay) {
	face := c.fontFace(text.FontSize)

	d := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(parseColor(text.Color)),
		Face: face,
	}

	width := d.MeasureString(text.Content)
	metrics := face.Metrics()

	cx := int(math.Round(text.Position.X / 100 * float64(c.settings.Width)))
	cy := int(math.Round(text.Position.Y / 100 * float64(c.settings.Height)))

	d.Dot = fixed.Point26_6{
		X: fixed.I(cx) - width/2,
		Y: fixed.I(cy) + metrics.Ascent - metrics.Height/2,
	}
	d.DrawString(text.Content)
}

// fontFace returns a cached face at the given size, falling back to the
// built-in bitmap face when no font file is configured.
func (c *Compositor) fontFace(size int) font.Face {
	if size <= 0 {
		size = 24
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if face, ok := c.faceCache[size]; ok {
		return face
	}

	face := font.Face(basicfont.Face7x13)
	if c.fontPath != "" {
		if data, err := os.ReadFile(c.fontPath); err == nil {
			if parsed, err := opentype.Parse(data); err == nil {
				if f, err := opentype.NewFace(parsed, &opentype.FaceOptions{
					Size:    float64(size),
					DPI:     72,
					Hinting: font.HintingFull,
				}); err == nil {
					face = f
				}
			}
		}
	}

	c.faceCache[size] = face
	return face
}

func (c *Compositor) cachedImage(path string) image.Image {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if img, ok := c.imageCache[path]; ok {
		return img
	}
	img := loadImage(path)
	if img != nil {
		c.imageCache[path] = img
	}
	return img
}

// drawFitted letterboxes src onto the canvas preserving aspect ratio
func drawFitted(canvas *image.RGBA, src image.Image) {
	cw, ch := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	if sw == 0 || sh == 0 {
		return
	}

	scale := math.Min(float64(cw)/float64(sw), float64(ch)/float64(sh))
	w := int(math.Round(float64(sw) * scale))
	h := int(math.Round(float64(sh) * scale))
	x := (cw - w) / 2
	y := (ch - h) / 2

	dst := image.Rect(x, y, x+w, y+h)
	xdraw.BiLinear.Scale(canvas, dst, src, src.Bounds(), xdraw.Over, nil)
}

// rotateScale renders src scaled into a side×side box and rotated by
// degrees, into a buffer large enough to hold the rotated bounds.
func rotateScale(src image.Image, side int, degrees float64) image.Image {
	rad := degrees * math.Pi / 180
	sin, cos := math.Sincos(rad)

	// Rotated bounding box of the side×side sticker.
	bw := int(math.Ceil(math.Abs(float64(side)*cos) + math.Abs(float64(side)*sin)))
	bh := int(math.Ceil(math.Abs(float64(side)*sin) + math.Abs(float64(side)*cos)))

	out := image.NewRGBA(image.Rect(0, 0, bw, bh))

	sb := src.Bounds()
	sx := float64(side) / float64(sb.Dx())
	sy := float64(side) / float64(sb.Dy())

	// Map source coordinates through scale, rotation about the sticker
	// center, then translation to the buffer center.
	cx, cy := float64(bw)/2, float64(bh)/2
	hw, hh := float64(sb.Dx())/2, float64(sb.Dy())/2
	m := f64.Aff3{
		cos * sx, -sin * sy, cx - cos*sx*hw + sin*sy*hh,
		sin * sx, cos * sy, cy - sin*sx*hw - cos*sy*hh,
	}

	xdraw.BiLinear.Transform(out, m, src, sb, xdraw.Over, nil)
	return out
}

func loadImage(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	return img
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// parseColor understands #RRGGBB and a few common names
func parseColor(s string) color.Color {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		var r, g, b uint8
		if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err == nil {
			return color.RGBA{R: r, G: g, B: b, A: 255}
		}
	}
	switch s {
	case "black":
		return color.RGBA{A: 255}
	case "red":
		return color.RGBA{R: 255, A: 255}
	case "green":
		return color.RGBA{G: 255, A: 255}
	case "blue":
		return color.RGBA{B: 255, A: 255}
	case "yellow":
		return color.RGBA{R: 255, G: 255, A: 255}
	default:
		return color.White
	}
}
