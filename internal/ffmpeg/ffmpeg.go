package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// diagnosticTail is how many trailing output lines are kept for error reporting.
const diagnosticTail = 30

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates a new ffmpeg executor. Empty binary paths are resolved from PATH.
func New(logger zerolog.Logger, ffmpegBin, ffprobeBin string, threads int) (*Executor, error) {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

// ExecError is returned when the ffmpeg child process exits non-zero. It
// carries the trailing output lines so callers can surface diagnostics.
type ExecError struct {
	Err        error
	Diagnostic string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Run executes ffmpeg with the given arguments and streams progress.
// The process is issued asynchronously; Run suspends until it emits
// output or terminates, and cancelling ctx kills the child process.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "info"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", fmt.Sprintf("%d", e.threads))
	}

	baseArgs = append(baseArgs, "-progress", "pipe:2")
	args := append(baseArgs, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		tail []string
	)
	keepTail := func(line string) {
		mu.Lock()
		tail = append(tail, line)
		if len(tail) > diagnosticTail {
			tail = tail[1:]
		}
		mu.Unlock()
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	}

	wg.Add(2)

	// Stream stderr (progress + logs)
	go func() {
		defer wg.Done()
		e.streamOutput(stderr, opts.ProgressHandler, keepTail)
	}()

	// Stream stdout
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			keepTail(scanner.Text())
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		diag := strings.Join(tail, "\n")
		mu.Unlock()
		return &ExecError{Err: err, Diagnostic: diag}
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// streamOutput parses ffmpeg output and calls handlers
func (e *Executor) streamOutput(r io.Reader, progressHandler ProgressFunc, logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		if logHandler != nil {
			logHandler(line)
		}

		parseProgressLine(line, progressData)

		// "progress=" terminates one progress block
		if strings.HasPrefix(line, "progress=") {
			if progressHandler != nil && (progressData.Frame > 0 || progressData.Time != "") {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		}
	}
}

// parseProgressLine folds a single -progress output line into p.
func parseProgressLine(line string, p *Progress) {
	switch {
	case strings.HasPrefix(line, "frame="):
		fmt.Sscanf(line, "frame=%d", &p.Frame)
	case strings.HasPrefix(line, "fps="):
		fmt.Sscanf(line, "fps=%f", &p.FPS)
	case strings.HasPrefix(line, "bitrate="):
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			p.Bitrate = strings.TrimSpace(parts[1])
		}
	case strings.HasPrefix(line, "out_time="):
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			p.Time = strings.TrimSpace(parts[1])
		}
	case strings.HasPrefix(line, "time="):
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			p.Time = strings.TrimSpace(parts[1])
		}
	case strings.HasPrefix(line, "speed="):
		if parts := strings.SplitN(line, "=", 2); len(parts) == 2 {
			p.Speed = strings.TrimSpace(parts[1])
		}
	}
}
