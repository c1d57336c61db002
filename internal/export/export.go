// Package export implements the export compilation pipeline: strategy
// analysis, sticker materialization, filter graph synthesis, optional
// frame rasterization, and the ffmpeg invocation that produces the
// final artifact.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Quriosity-agent/qcut-sub012/internal/config"
	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
	"github.com/Quriosity-agent/qcut-sub012/pkg/util"
)

// ProgressEvent is one entry of the export progress stream
type ProgressEvent struct {
	Percent float64
	Stage   string
}

// Progress stages
const (
	StagePreparing     = "preparing"
	StageMaterializing = "materializing assets"
	StageRendering     = "rendering frames"
	StageEncoding      = "encoding"
	StageComplete      = "complete"
)

// Job describes one export request
type Job struct {
	// SessionID identifies the export session; at most one export may be
	// in flight per id. Empty ids get a generated one.
	SessionID string
	Timeline  *timeline.Timeline
	Media     timeline.Library
	Settings  Settings
	// OutputPath is the caller-specified artifact location.
	OutputPath string
}

// Result is the terminal outcome of a successful export
type Result struct {
	OutputPath string
	Analysis   Analysis
	Warnings   []string
}

// Handle tracks one in-flight export. Progress carries the event
// stream; Wait blocks until the terminal outcome.
type Handle struct {
	SessionID string
	Progress  <-chan ProgressEvent

	done   chan struct{}
	result Result
	err    error
}

// Wait blocks until the export finishes and returns its outcome
func (h *Handle) Wait() (Result, error) {
	<-h.done
	return h.result, h.err
}

// Manager runs export attempts. It enforces at-most-one in-flight
// export per session id; a second request for the same session is
// rejected, not queued.
type Manager struct {
	logger zerolog.Logger
	cfg    *config.Config
	ff     *ffmpeg.Executor

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewManager creates an export manager
func NewManager(logger zerolog.Logger, cfg *config.Config) (*Manager, error) {
	ff, err := ffmpeg.New(logger, cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	return &Manager{
		logger:   logger.With().Str("component", "export").Logger(),
		cfg:      cfg,
		ff:       ff,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Start launches an export attempt. It returns immediately; the
// pipeline runs in the background and reports through the handle.
func (m *Manager) Start(ctx context.Context, job Job) (*Handle, error) {
	if job.Timeline == nil {
		return nil, fmt.Errorf("job has no timeline")
	}
	if err := m.fillDefaults(&job); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, busy := m.inFlight[job.SessionID]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("export already in flight for session %s", job.SessionID)
	}
	m.inFlight[job.SessionID] = struct{}{}
	m.mu.Unlock()

	progress := make(chan ProgressEvent, 64)
	h := &Handle{
		SessionID: job.SessionID,
		Progress:  progress,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer close(progress)
		defer func() {
			m.mu.Lock()
			delete(m.inFlight, job.SessionID)
			m.mu.Unlock()
		}()

		h.result, h.err = m.run(ctx, job, progress)
	}()

	return h, nil
}

func (m *Manager) fillDefaults(job *Job) error {
	if job.SessionID == "" {
		job.SessionID = uuid.NewString()
	}
	s := &job.Settings
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid export resolution %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	if s.Quality == "" {
		s.Quality = QualityMedium
	}
	if s.Container == "" {
		s.Container = "mp4"
	}
	if s.Duration <= 0 {
		s.Duration = job.Timeline.Duration()
	}
	if job.OutputPath == "" {
		job.OutputPath = fmt.Sprintf("export.%s", s.Container)
	}
	return nil
}

// emit pushes a progress event without ever blocking the pipeline
func emit(progress chan<- ProgressEvent, stage string, pct float64) {
	select {
	case progress <- ProgressEvent{Percent: pct, Stage: stage}:
	default:
	}
}

// run drives one export attempt end to end. The session workspace is
// torn down on every path out, including cancellation.
func (m *Manager) run(ctx context.Context, job Job, progress chan<- ProgressEvent) (Result, error) {
	emit(progress, StagePreparing, 0)

	analysis := Analyze(job.Timeline, job.Media)
	result := Result{Analysis: analysis}

	m.logger.Info().
		Str("session", job.SessionID).
		Str("strategy", string(analysis.Strategy)).
		Str("reason", analysis.Reason).
		Msg("export strategy chosen")

	if job.Settings.Duration <= 0 {
		return result, newError(KindAnalysisImpossible, "analyze timeline",
			fmt.Errorf("timeline has no content to export"))
	}

	session, err := NewSession(m.logger, m.cfg.WorkDir, job.SessionID)
	if err != nil {
		return result, err
	}
	defer session.Cleanup()

	// Materialization must fully complete before the filter graph is
	// built: stream indices depend on the final, stable sticker set.
	emit(progress, StageMaterializing, 0)
	stickers := job.Timeline.Stickers()
	materializer := NewMaterializer(m.logger, session, job.Media)
	materializer.Workers = m.cfg.Concurrency
	paths, warnings := materializer.Materialize(ctx, stickers)
	result.Warnings = warnings
	if ctx.Err() != nil {
		return result, newError(KindCancelled, "materialize assets", ctx.Err())
	}

	resolved := make([]ResolvedSticker, 0, len(paths))
	for _, s := range stickers {
		if p, ok := paths[s.ID]; ok {
			resolved = append(resolved, ResolvedSticker{StickerOverlay: s, Path: p})
		}
	}

	// Under frame rendering the compositor bakes clips, overlays, and
	// effects into the frames and the builder emits a no-op plan, so
	// nothing is composited twice at encode time.
	builder := NewGraphBuilder(m.logger, job.Settings, m.cfg.Text.FontPath)
	plan := builder.Build(analysis.Strategy, job.Timeline.Effects(), resolved, job.Timeline.Texts())

	req := ExecRequest{
		Strategy:   analysis.Strategy,
		Plan:       plan,
		Audio:      m.audioTracks(job, &result),
		OutputPath: filepath.Join(session.OutputDir, fmt.Sprintf("out.%s", job.Settings.Container)),
	}

	switch analysis.Strategy {
	case StrategyDirectCopy, StrategyDirectFilters:
		primary, err := m.primaryVideo(job)
		if err != nil {
			return result, err
		}
		req.Primary = primary

	case StrategyFrameRender:
		compositor := NewCompositor(m.logger, m.ff, session, job.Settings,
			job.Timeline, job.Media, paths, m.cfg.Text.FontPath)
		emit(progress, StageRendering, 0)
		if _, err := compositor.RenderFrames(ctx, func(index, total int) {
			emit(progress, StageRendering, float64(index+1)/float64(total)*100)
		}); err != nil {
			return result, err
		}
		req.Primary = PrimaryInput{FramePattern: session.FramePattern()}
	}

	emit(progress, StageEncoding, 0)
	executor := NewExecutor(m.logger, m.ff, job.Settings, m.cfg.FFmpeg.Preset)
	staged, err := executor.Execute(ctx, req, func(pct float64) {
		emit(progress, StageEncoding, pct)
	})
	if err != nil {
		return result, err
	}

	if err := moveFile(staged, job.OutputPath); err != nil {
		return result, newError(KindSessionIO, "move output artifact", err)
	}
	result.OutputPath = job.OutputPath

	emit(progress, StageComplete, 100)
	m.logger.Info().
		Str("session", job.SessionID).
		Str("output", job.OutputPath).
		Msg("export complete")

	return result, nil
}

// primaryVideo locates the lone video clip for the direct strategies
func (m *Manager) primaryVideo(job Job) (PrimaryInput, error) {
	for _, clip := range job.Timeline.Clips() {
		item := job.Media.Get(clip.MediaID)
		if item == nil || item.Kind != timeline.MediaVideo {
			continue
		}
		if item.Path == "" {
			return PrimaryInput{}, newError(KindAnalysisImpossible, "resolve primary video",
				fmt.Errorf("video media %q has no local path", item.ID))
		}
		return PrimaryInput{
			VideoPath: item.Path,
			TrimStart: clip.TrimStart,
			HasAudio:  item.HasAudio,
		}, nil
	}
	return PrimaryInput{}, newError(KindAnalysisImpossible, "resolve primary video",
		fmt.Errorf("no video clip in timeline"))
}

// audioTracks collects audio clips as executor inputs, in track order
func (m *Manager) audioTracks(job Job, result *Result) []AudioTrack {
	var tracks []AudioTrack
	for _, clip := range job.Timeline.Clips() {
		item := job.Media.Get(clip.MediaID)
		if item == nil || item.Kind != timeline.MediaAudio {
			continue
		}
		if item.Path == "" {
			warn := fmt.Sprintf("audio clip %s skipped: no local path", item.ID)
			result.Warnings = append(result.Warnings, warn)
			m.logger.Warn().Str("media", item.ID).Msg("audio clip has no local path, skipping")
			continue
		}
		tracks = append(tracks, AudioTrack{
			Path:      item.Path,
			Offset:    clip.Start,
			TrimStart: clip.TrimStart,
			Span:      clip.Span(),
			Volume:    clip.Volume,
		})
	}
	return tracks
}

// moveFile renames with a copy fallback for cross-device moves
func moveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := util.EnsureDir(dir); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := util.CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
