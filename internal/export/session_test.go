package export

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionCreatesWorkspace(t *testing.T) {
	work := t.TempDir()
	session, err := NewSession(zerolog.Nop(), work, "abc")
	require.NoError(t, err)

	assert.Equal(t, "abc", session.ID)
	assert.Equal(t, filepath.Join(work, "export-abc"), session.Root)
	assert.DirExists(t, session.FrameDir)
	assert.DirExists(t, session.StickerDir)
	assert.DirExists(t, session.OutputDir)

	session.Cleanup()
	assert.NoDirExists(t, session.Root)
}

func TestNewSessionGeneratesID(t *testing.T) {
	session, err := NewSession(zerolog.Nop(), t.TempDir(), "")
	require.NoError(t, err)
	defer session.Cleanup()

	assert.NotEmpty(t, session.ID)
	assert.Contains(t, session.Root, "export-"+session.ID)
}

func TestSessionPaths(t *testing.T) {
	session, err := NewSession(zerolog.Nop(), t.TempDir(), "x")
	require.NoError(t, err)
	defer session.Cleanup()

	assert.Equal(t, filepath.Join(session.FrameDir, "raw_frame-0007.png"), session.RawFramePath(7))
	assert.Equal(t, filepath.Join(session.FrameDir, "frame-0007.png"), session.FramePath(7))
	assert.Equal(t, filepath.Join(session.FrameDir, "frame-%04d.png"), session.FramePattern())
	assert.Equal(t, filepath.Join(session.StickerDir, "sticker-logo.png"), session.StickerPath("logo"))
}

func TestQualityCRF(t *testing.T) {
	assert.Equal(t, 30, QualityLow.CRF())
	assert.Equal(t, 23, QualityMedium.CRF())
	assert.Equal(t, 20, QualityHigh.CRF())
	assert.Equal(t, 16, QualityVeryHigh.CRF())
	assert.Equal(t, QualityMedium.CRF(), Quality("nonsense").CRF())
}

func TestSettingsShorterSide(t *testing.T) {
	assert.Equal(t, 1080, Settings{Width: 1920, Height: 1080}.ShorterSide())
	assert.Equal(t, 720, Settings{Width: 720, Height: 1280}.ShorterSide())
}
