package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/pkg/util"
)

// PrimaryInput selects the stream the filter graph is anchored to:
// exactly one of a local video file or a rasterized frame sequence.
type PrimaryInput struct {
	// VideoPath is the lone video's local file for the direct strategies.
	VideoPath string
	// TrimStart is seconds to seek into the source. The export duration
	// already reflects the trimmed span; trim is never subtracted again.
	TrimStart float64
	// HasAudio reports whether the primary video carries an audio stream.
	HasAudio bool
	// FramePattern is the zero-padded frame-sequence pattern for the
	// frame-rendering strategy.
	FramePattern string
}

// AudioTrack is one audio input, attached after all sticker inputs
type AudioTrack struct {
	Path      string
	Offset    float64 // start offset within the timeline
	TrimStart float64 // seconds clipped from the source head
	Span      float64 // trimmed length; zero means the whole source
	Volume    float64 // gain multiplier; zero means unity
}

// ExecRequest is everything the executor needs to assemble and drive
// one ffmpeg invocation.
type ExecRequest struct {
	Strategy   Strategy
	Primary    PrimaryInput
	Plan       *Plan
	Audio      []AudioTrack
	OutputPath string
}

// Executor assembles the full ffmpeg command line for the chosen
// strategy and drives the child process, translating its progress
// counters into a normalized 0-100 callback.
type Executor struct {
	logger   zerolog.Logger
	ff       *ffmpeg.Executor
	settings Settings
	preset   string
}

// NewExecutor creates an executor for one export attempt
func NewExecutor(logger zerolog.Logger, ff *ffmpeg.Executor, settings Settings, preset string) *Executor {
	if preset == "" {
		preset = ffmpeg.DefaultPreset
	}
	return &Executor{
		logger:   logger.With().Str("component", "executor").Logger(),
		ff:       ff,
		settings: settings,
		preset:   preset,
	}
}

// Execute runs the assembled command. onProgress receives percentages
// normalized against the export duration. The child process is killed
// when ctx is cancelled.
func (e *Executor) Execute(ctx context.Context, req ExecRequest, onProgress func(float64)) (string, error) {
	args := e.buildArgs(req)

	e.logger.Info().
		Str("strategy", string(req.Strategy)).
		Str("output", req.OutputPath).
		Int("extra_inputs", len(req.Plan.ExtraInputs)).
		Int("audio_tracks", len(req.Audio)).
		Msg("starting encode")

	opts := ffmpeg.RunOptions{
		Args: args,
		ProgressHandler: func(p *ffmpeg.Progress) {
			if onProgress == nil {
				return
			}
			onProgress(e.normalize(p))
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("encode output")
		},
	}

	if err := e.ff.Run(ctx, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", newError(KindCancelled, "encode", err)
		}
		var execErr *ffmpeg.ExecError
		if errors.As(err, &execErr) {
			return "", &Error{Kind: KindExternalTool, Op: "encode", Err: err, Diagnostic: execErr.Diagnostic}
		}
		return "", newError(KindExternalTool, "encode", err)
	}

	e.logger.Info().Str("output", req.OutputPath).Msg("encode completed")
	return req.OutputPath, nil
}

// buildArgs assembles the complete argument list for one strategy
func (e *Executor) buildArgs(req ExecRequest) []string {
	var args []string

	switch req.Strategy {
	case StrategyDirectCopy:
		// Lone video, stream copy, no filter graph.
		if req.Primary.TrimStart > 0 {
			args = append(args, "-ss", util.FormatSeconds(req.Primary.TrimStart))
		}
		args = append(args, "-i", req.Primary.VideoPath)
		args = append(args, "-t", util.FormatSeconds(e.settings.Duration))
		args = append(args, "-c", "copy")
		args = append(args, "-movflags", "+faststart")
		args = append(args, req.OutputPath)
		return args

	case StrategyDirectFilters:
		if req.Primary.TrimStart > 0 {
			args = append(args, "-ss", util.FormatSeconds(req.Primary.TrimStart))
		}
		args = append(args, "-i", req.Primary.VideoPath)

	case StrategyFrameRender:
		args = append(args,
			"-framerate", fmt.Sprintf("%g", e.settings.FPS),
			"-start_number", "0",
			"-i", req.Primary.FramePattern,
		)
	}

	// Extra (sticker) inputs, each looped as a still for the export span.
	for _, extra := range req.Plan.ExtraInputs {
		args = append(args,
			"-loop", "1",
			"-t", util.FormatSeconds(e.settings.Duration),
			"-i", extra.Path,
		)
	}

	// Audio inputs follow the last sticker input.
	for _, track := range req.Audio {
		args = append(args, "-i", track.Path)
	}

	graph, videoMap, audioMap := e.assembleGraph(req)
	if graph != "" {
		args = append(args, "-filter_complex", graph)
	}

	args = append(args, "-map", videoMap)
	if audioMap != "" {
		args = append(args, "-map", audioMap)
	}

	args = append(args,
		"-c:v", ffmpeg.DefaultVideoCodec,
		"-crf", fmt.Sprintf("%d", e.settings.Quality.CRF()),
		"-preset", e.preset,
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%g", e.settings.FPS),
		"-s", fmt.Sprintf("%dx%d", e.settings.Width, e.settings.Height),
	)
	if audioMap != "" {
		args = append(args, "-c:a", ffmpeg.DefaultAudioCodec)
	}
	args = append(args,
		"-t", util.FormatSeconds(e.settings.Duration),
		"-movflags", "+faststart",
		req.OutputPath,
	)

	return args
}

// assembleGraph merges the overlay plan with the audio mix chain into a
// single -filter_complex expression, returning the graph and the video
// and audio map targets.
func (e *Executor) assembleGraph(req ExecRequest) (graph, videoMap, audioMap string) {
	var segments []string

	videoMap = "0:v"
	if !req.Plan.Empty() {
		segments = append(segments, req.Plan.FilterGraph())
		videoMap = req.Plan.OutputLabel()
	}

	audioGraph, mapped := e.audioChain(req)
	if audioGraph != "" {
		segments = append(segments, audioGraph)
	}
	audioMap = mapped

	return strings.Join(segments, ";"), videoMap, audioMap
}

// audioChain trims, delays, and scales each audio track, then mixes the
// set down. The first audio input index is 1 + stickerCount: input 0 is
// the primary stream and stickers occupy 1..stickerCount.
func (e *Executor) audioChain(req ExecRequest) (string, string) {
	offset := req.Plan.AudioInputOffset()

	var labels []string
	// The primary video's own audio participates in the mix.
	if req.Strategy == StrategyDirectFilters && req.Primary.HasAudio {
		labels = append(labels, "[0:a]")
	}

	if len(req.Audio) == 0 {
		if len(labels) == 1 {
			// Nothing to mix; map the source stream directly.
			return "", "0:a?"
		}
		return "", ""
	}

	var segments []string
	for i, track := range req.Audio {
		fb := ffmpeg.NewFilterBuilder()
		if track.TrimStart > 0 || track.Span > 0 {
			end := track.TrimStart + track.Span
			if track.Span <= 0 {
				end = math.Inf(1)
			}
			if math.IsInf(end, 1) {
				fb.Custom(fmt.Sprintf("atrim=start=%.3f", track.TrimStart))
			} else {
				fb.Custom(fmt.Sprintf("atrim=start=%.3f:end=%.3f", track.TrimStart, end))
			}
			fb.Custom("asetpts=PTS-STARTPTS")
		}
		if track.Offset > 0 {
			fb.Custom(fmt.Sprintf("adelay=%d:all=1", int(math.Round(track.Offset*1000))))
		}
		if track.Volume > 0 && track.Volume != 1 {
			fb.Custom(fmt.Sprintf("volume=%.2f", track.Volume))
		}
		if fb.Empty() {
			fb.Custom("anull")
		}

		label := fmt.Sprintf("[aud%d]", i)
		segments = append(segments, fmt.Sprintf("[%d:a]%s%s", offset+i, fb.Build(), label))
		labels = append(labels, label)
	}

	if len(labels) == 1 {
		return strings.Join(segments, ";"), labels[0]
	}

	mix := fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[aout]",
		strings.Join(labels, ""), len(labels))
	segments = append(segments, mix)
	return strings.Join(segments, ";"), "[aout]"
}

// normalize converts ffmpeg progress counters to a 0-100 percentage
func (e *Executor) normalize(p *ffmpeg.Progress) float64 {
	if e.settings.Duration <= 0 {
		return 0
	}

	var done float64
	if p.Time != "" {
		if t, err := util.ParseTimestamp(p.Time); err == nil {
			done = t
		}
	}
	if done == 0 && p.Frame > 0 && e.settings.FPS > 0 {
		done = float64(p.Frame) / e.settings.FPS
	}

	pct := done / e.settings.Duration * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
