package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub012/internal/export"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

const sampleProject = `
name: demo
media:
  - id: intro
    kind: video
    path: /media/intro.mp4
    duration: 12
    has_audio: true
  - id: logo
    kind: image
    path: /media/logo.png
tracks:
  - name: main
    elements:
      - type: clip
        media_id: intro
        start: 0
        trim_start: 2
      - type: effect
        kind: grayscale
        start: 0
        end: 5
  - name: overlays
    elements:
      - type: sticker
        id: s1
        media_id: logo
        position: {x: 80, y: 20}
        size: 15
        opacity: 0.9
        z_index: 1
        start: 1
        end: 8
      - type: text
        content: "Hello"
        font_size: 48
        color: "#ffffff"
        position: {x: 50, y: 90}
        start: 0
        end: 10
settings:
  width: 1920
  height: 1080
  fps: 30
  quality: high
  container: mp4
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProject(t *testing.T) {
	p, err := Load(writeProject(t, sampleProject))
	require.NoError(t, err)

	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, 1920, p.Settings.Width)
	assert.Equal(t, export.QualityHigh, p.Settings.Quality)

	require.Len(t, p.Timeline.Tracks, 2)
	require.Len(t, p.Timeline.Tracks[0].Elements, 2)

	clips := p.Timeline.Clips()
	require.Len(t, clips, 1)
	// The clip inherits the media table's intrinsic duration.
	assert.Equal(t, 12.0, clips[0].Duration)
	assert.Equal(t, 2.0, clips[0].TrimStart)
	assert.Equal(t, 10.0, clips[0].Span())

	stickers := p.Timeline.Stickers()
	require.Len(t, stickers, 1)
	assert.Equal(t, "s1", stickers[0].ID)
	assert.Equal(t, 80.0, stickers[0].Position.X)

	texts := p.Timeline.Texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Hello", texts[0].Content)

	effects := p.Timeline.Effects()
	require.Len(t, effects, 1)
	assert.Equal(t, timeline.EffectGrayscale, effects[0].Kind)

	require.NotNil(t, p.Media.Get("intro"))
	assert.True(t, p.Media.Get("intro").HasAudio)
}

func TestLoadRejectsUnknownElementType(t *testing.T) {
	_, err := Load(writeProject(t, `
name: bad
tracks:
  - name: main
    elements:
      - type: hologram
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hologram")
}

func TestLoadRejectsMediaWithoutID(t *testing.T) {
	_, err := Load(writeProject(t, `
name: bad
media:
  - kind: video
    path: /media/a.mp4
`))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
