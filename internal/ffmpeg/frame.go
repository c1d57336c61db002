package ffmpeg

import (
	"context"
	"fmt"

	"github.com/Quriosity-agent/qcut-sub012/pkg/util"
)

// ExtractFrame decodes the single frame of input nearest to timestamp
// (in seconds) and writes it to output. The output format follows the
// file extension.
func (e *Executor) ExtractFrame(ctx context.Context, input, output string, timestamp float64) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"-ss", util.FormatSeconds(timestamp),
		"-i", input,
		"-vframes", "1",
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame extraction")
		},
	}

	return e.Run(ctx, opts)
}

// FilterImage applies a video filter chain to a single still image,
// writing the result to output. Used for per-frame post-filtering.
func (e *Executor) FilterImage(ctx context.Context, input, output, filter string) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}
	if filter == "" {
		return fmt.Errorf("filter is required")
	}

	args := []string{
		"-i", input,
		"-vf", filter,
		"-frames:v", "1",
		output,
	}

	opts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("frame filtering")
		},
	}

	return e.Run(ctx, opts)
}
