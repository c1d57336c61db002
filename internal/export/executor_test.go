package export

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

func newTestExecutor(settings Settings) *Executor {
	return NewExecutor(zerolog.Nop(), nil, settings, "fast")
}

func countFlag(args []string, flag string) int {
	n := 0
	for _, a := range args {
		if a == flag {
			n++
		}
	}
	return n
}

func flagValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag {
			require.Less(t, i+1, len(args), "flag %s has no value", flag)
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

func TestBuildArgsDirectCopy(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 30, Duration: 7, Quality: QualityMedium}
	e := newTestExecutor(settings)

	args := e.buildArgs(ExecRequest{
		Strategy:   StrategyDirectCopy,
		Primary:    PrimaryInput{VideoPath: "/media/in.mp4", TrimStart: 2},
		Plan:       &Plan{},
		OutputPath: "/out/final.mp4",
	})

	// Trim maps to a single seek flag; duration already reflects the
	// trimmed span and is applied exactly once.
	assert.Equal(t, 1, countFlag(args, "-ss"))
	assert.Equal(t, "00:00:02.000", flagValue(t, args, "-ss"))
	assert.Equal(t, 1, countFlag(args, "-t"))
	assert.Equal(t, "00:00:07.000", flagValue(t, args, "-t"))

	assert.Equal(t, "copy", flagValue(t, args, "-c"))
	assert.NotContains(t, args, "-filter_complex")
	assert.Equal(t, "/out/final.mp4", args[len(args)-1])
}

func TestBuildArgsDirectCopyNoTrim(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 30, Duration: 10, Quality: QualityMedium}
	e := newTestExecutor(settings)

	args := e.buildArgs(ExecRequest{
		Strategy:   StrategyDirectCopy,
		Primary:    PrimaryInput{VideoPath: "/media/in.mp4"},
		Plan:       &Plan{},
		OutputPath: "/out/final.mp4",
	})

	assert.Equal(t, 0, countFlag(args, "-ss"))
}

func TestBuildArgsStickerAndAudioIndices(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 30, Duration: 10, Quality: QualityMedium}
	builder := NewGraphBuilder(zerolog.Nop(), settings, "")

	stickers := []ResolvedSticker{
		sticker("a", 0, 0, 10),
		sticker("b", 1, 0, 10),
		sticker("c", 2, 0, 10),
	}
	plan := builder.Build(StrategyDirectFilters, nil, stickers, nil)
	require.Equal(t, 4, plan.AudioInputOffset())

	e := newTestExecutor(settings)
	args := e.buildArgs(ExecRequest{
		Strategy: StrategyDirectFilters,
		Primary:  PrimaryInput{VideoPath: "/media/in.mp4"},
		Plan:     plan,
		Audio: []AudioTrack{
			{Path: "/media/music.mp3", Offset: 1.5},
			{Path: "/media/voice.wav", Offset: 0, Volume: 0.8},
		},
		OutputPath: "/out/final.mp4",
	})

	// Inputs: primary + 3 stickers + 2 audio, in that order.
	assert.Equal(t, 6, countFlag(args, "-i"))
	assert.Equal(t, 3, countFlag(args, "-loop"))

	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	require.Len(t, inputs, 6)
	assert.Equal(t, "/media/in.mp4", inputs[0])
	assert.Equal(t, "/stickers/a.png", inputs[1])
	assert.Equal(t, "/stickers/c.png", inputs[3])
	assert.Equal(t, "/media/music.mp3", inputs[4])
	assert.Equal(t, "/media/voice.wav", inputs[5])

	// Audio chains read from inputs 4 and 5: 1 + stickerCount onward.
	graph := flagValue(t, args, "-filter_complex")
	assert.Contains(t, graph, "[4:a]")
	assert.Contains(t, graph, "[5:a]")
	assert.NotContains(t, graph, "[6:a]")
	assert.Contains(t, graph, "adelay=1500:all=1")
	assert.Contains(t, graph, "volume=0.80")
	assert.Contains(t, graph, "amix=inputs=2")
	assert.Contains(t, graph, "[aout]")
}

func TestBuildArgsPrimaryAudioJoinsMix(t *testing.T) {
	settings := Settings{Width: 1280, Height: 720, FPS: 30, Duration: 10, Quality: QualityMedium}
	builder := NewGraphBuilder(zerolog.Nop(), settings, "")
	plan := builder.Build(StrategyDirectFilters, nil, []ResolvedSticker{sticker("a", 0, 0, 10)}, nil)

	e := newTestExecutor(settings)
	args := e.buildArgs(ExecRequest{
		Strategy:   StrategyDirectFilters,
		Primary:    PrimaryInput{VideoPath: "/media/in.mp4", HasAudio: true},
		Plan:       plan,
		Audio:      []AudioTrack{{Path: "/media/music.mp3"}},
		OutputPath: "/out/final.mp4",
	})

	graph := flagValue(t, args, "-filter_complex")
	assert.Contains(t, graph, "[0:a]")
	assert.Contains(t, graph, "amix=inputs=2")
}

func TestBuildArgsFrameRendering(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 24, Duration: 5, Quality: QualityHigh}
	e := newTestExecutor(settings)

	args := e.buildArgs(ExecRequest{
		Strategy:   StrategyFrameRender,
		Primary:    PrimaryInput{FramePattern: "/work/frames/frame-%04d.png"},
		Plan:       &Plan{},
		OutputPath: "/out/final.mp4",
	})

	assert.Equal(t, "24", flagValue(t, args, "-framerate"))
	assert.Equal(t, "0", flagValue(t, args, "-start_number"))
	assert.Equal(t, "/work/frames/frame-%04d.png", flagValue(t, args, "-i"))
	assert.NotContains(t, args, "-ss")
	assert.Equal(t, "0:v", flagValue(t, args, "-map"))
	assert.Equal(t, "20", flagValue(t, args, "-crf"))
}

func TestBuildArgsDirectFiltersMapsPlanOutput(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 30, Duration: 10, Quality: QualityMedium}
	builder := NewGraphBuilder(zerolog.Nop(), settings, "")
	plan := builder.Build(StrategyDirectFilters, nil, nil,
		[]timeline.TextOverlay{{Content: "hi", Start: 0, End: 10, Position: timeline.Position{X: 50, Y: 50}}})

	e := newTestExecutor(settings)
	args := e.buildArgs(ExecRequest{
		Strategy:   StrategyDirectFilters,
		Primary:    PrimaryInput{VideoPath: "/media/in.mp4"},
		Plan:       plan,
		OutputPath: "/out/final.mp4",
	})

	assert.Equal(t, plan.OutputLabel(), flagValue(t, args, "-map"))
	assert.True(t, strings.HasPrefix(plan.OutputLabel(), "[v"))
}

func TestNormalizeProgress(t *testing.T) {
	settings := Settings{Width: 1920, Height: 1080, FPS: 30, Duration: 8, Quality: QualityMedium}
	e := newTestExecutor(settings)

	assert.InDelta(t, 50, e.normalize(&ffmpeg.Progress{Time: "00:00:04.000"}), 0.01)
	assert.InDelta(t, 100, e.normalize(&ffmpeg.Progress{Time: "00:00:09.000"}), 0.01)
	// Frame counters back-fill when no time is reported.
	assert.InDelta(t, 25, e.normalize(&ffmpeg.Progress{Frame: 60}), 0.01)
	assert.Equal(t, 0.0, e.normalize(&ffmpeg.Progress{}))
}
