package export

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	session, err := NewSession(zerolog.Nop(), t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(session.Cleanup)
	return session
}

func TestMaterializeLocalPathPassthrough(t *testing.T) {
	session := newTestSession(t)
	media := timeline.Library{
		"m1": {ID: "m1", Kind: timeline.MediaImage, Path: "/assets/logo.png"},
	}
	m := NewMaterializer(zerolog.Nop(), session, media)

	paths, warnings := m.Materialize(context.Background(), []timeline.StickerOverlay{
		{ID: "s1", MediaID: "m1"},
	})

	assert.Empty(t, warnings)
	assert.Equal(t, "/assets/logo.png", paths["s1"])
}

func TestMaterializeDataBackedSticker(t *testing.T) {
	session := newTestSession(t)
	media := timeline.Library{
		"m1": {ID: "m1", Kind: timeline.MediaImage, Data: pngBytes(t)},
	}
	m := NewMaterializer(zerolog.Nop(), session, media)

	paths, warnings := m.Materialize(context.Background(), []timeline.StickerOverlay{
		{ID: "s1", MediaID: "m1"},
	})

	require.Empty(t, warnings)
	require.Equal(t, session.StickerPath("s1"), paths["s1"])

	f, err := os.Open(paths["s1"])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestMaterializeDropsUndecodableSticker(t *testing.T) {
	session := newTestSession(t)
	media := timeline.Library{
		"good": {ID: "good", Kind: timeline.MediaImage, Data: pngBytes(t)},
		"bad":  {ID: "bad", Kind: timeline.MediaImage, Data: []byte("not an image")},
	}
	m := NewMaterializer(zerolog.Nop(), session, media)

	paths, warnings := m.Materialize(context.Background(), []timeline.StickerOverlay{
		{ID: "s1", MediaID: "good"},
		{ID: "s2", MediaID: "bad"},
	})

	// The bad sticker is dropped with a warning; the export goes on.
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "s2")
	assert.Contains(t, paths, "s1")
	assert.NotContains(t, paths, "s2")
}

func TestMaterializeUnknownMediaID(t *testing.T) {
	session := newTestSession(t)
	m := NewMaterializer(zerolog.Nop(), session, timeline.Library{})

	paths, warnings := m.Materialize(context.Background(), []timeline.StickerOverlay{
		{ID: "s1", MediaID: "missing"},
	})

	assert.Empty(t, paths)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "missing")
}
