package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Quriosity-agent/qcut-sub012/pkg/util"
)

// Session owns the temporary workspace of one export attempt: a frame
// directory, a sticker-asset directory, and an output directory. It is
// created at export start and torn down on success, failure, or cancel.
type Session struct {
	ID         string
	Root       string
	FrameDir   string
	StickerDir string
	OutputDir  string

	logger zerolog.Logger
}

// NewSession creates the workspace directories under workDir. An empty
// id gets a generated uuid.
func NewSession(logger zerolog.Logger, workDir, id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	root := filepath.Join(workDir, fmt.Sprintf("export-%s", id))
	s := &Session{
		ID:         id,
		Root:       root,
		FrameDir:   filepath.Join(root, "frames"),
		StickerDir: filepath.Join(root, "stickers"),
		OutputDir:  filepath.Join(root, "output"),
		logger:     logger.With().Str("component", "session").Str("session", id).Logger(),
	}

	for _, dir := range []string{s.FrameDir, s.StickerDir, s.OutputDir} {
		if err := util.EnsureDir(dir); err != nil {
			// Partial workspaces are removed so a failed create leaves nothing behind.
			_ = os.RemoveAll(root)
			return nil, newError(KindSessionIO, "create session workspace", err)
		}
	}

	s.logger.Debug().Str("root", root).Msg("session workspace created")
	return s, nil
}

// RawFramePath returns the path of the unfiltered frame at index k
func (s *Session) RawFramePath(k int) string {
	return filepath.Join(s.FrameDir, fmt.Sprintf("raw_frame-%04d.png", k))
}

// FramePath returns the path of the final frame at index k
func (s *Session) FramePath(k int) string {
	return filepath.Join(s.FrameDir, fmt.Sprintf("frame-%04d.png", k))
}

// FramePattern returns the ffmpeg input pattern for the final frames
func (s *Session) FramePattern() string {
	return filepath.Join(s.FrameDir, "frame-%04d.png")
}

// StickerPath returns the deterministic materialized path for a sticker id
func (s *Session) StickerPath(stickerID string) string {
	return filepath.Join(s.StickerDir, fmt.Sprintf("sticker-%s.png", stickerID))
}

// Cleanup removes the workspace recursively, best effort
func (s *Session) Cleanup() {
	if err := os.RemoveAll(s.Root); err != nil {
		s.logger.Warn().Err(err).Str("root", s.Root).Msg("session teardown incomplete")
		return
	}
	s.logger.Debug().Msg("session workspace removed")
}
