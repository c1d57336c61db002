package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

func init() {
	// Sticker assets arrive in whatever format the asset service produced.
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("gif", "GIF8", gif.Decode, gif.DecodeConfig)
}

// Materializer ensures every sticker referenced by the timeline exists
// as a local file before the filter graph is built. Failures are
// per-sticker and non-fatal: the sticker is dropped and a warning kept.
type Materializer struct {
	logger  zerolog.Logger
	session *Session
	media   timeline.Library
	client  *http.Client
	// Workers bounds concurrent downloads/decodes; zero means 4.
	Workers int
}

// NewMaterializer creates a materializer for one export attempt
func NewMaterializer(logger zerolog.Logger, session *Session, media timeline.Library) *Materializer {
	return &Materializer{
		logger:  logger.With().Str("component", "assets").Logger(),
		session: session,
		media:   media,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Materialize resolves every sticker to a local path. Stickers backed by
// a durable local file pass through unchanged; others are fetched or
// decoded into the session's sticker directory. The returned map only
// contains stickers that succeeded; warnings describe the rest.
// Materialization completes fully before the filter graph is built,
// since stream indices depend on the final sticker set.
func (m *Materializer) Materialize(ctx context.Context, stickers []timeline.StickerOverlay) (map[string]string, []string) {
	paths := make(map[string]string, len(stickers))
	var warnings []string
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	workers := m.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)

	for _, sticker := range stickers {
		sticker := sticker
		g.Go(func() error {
			path, err := m.materializeOne(ctx, sticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warn := fmt.Sprintf("sticker %s dropped: %v", sticker.ID, err)
				warnings = append(warnings, warn)
				m.logger.Warn().Err(err).Str("sticker", sticker.ID).Msg("sticker materialization failed, dropping from plan")
				return nil
			}
			paths[sticker.ID] = path
			return nil
		})
	}

	// Workers never return errors; Wait only observes ctx cancellation.
	_ = g.Wait()

	return paths, warnings
}

func (m *Materializer) materializeOne(ctx context.Context, sticker timeline.StickerOverlay) (string, error) {
	item := m.media.Get(sticker.MediaID)
	if item == nil {
		return "", newError(KindAssetMaterialization, "resolve media item",
			fmt.Errorf("unknown media id %q", sticker.MediaID))
	}

	if item.Path != "" {
		return item.Path, nil
	}

	data := item.Data
	if data == nil && item.SourceURL != "" {
		fetched, err := m.fetch(ctx, item.SourceURL)
		if err != nil {
			return "", newError(KindAssetMaterialization, "fetch sticker asset", err)
		}
		data = fetched
	}
	if data == nil {
		return "", newError(KindAssetMaterialization, "locate sticker asset",
			fmt.Errorf("media item %q has no path, data, or source url", item.ID))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", newError(KindAssetMaterialization, "decode sticker image", err)
	}

	dest := m.session.StickerPath(sticker.ID)
	f, err := os.Create(dest)
	if err != nil {
		return "", newError(KindAssetMaterialization, "persist sticker image", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", newError(KindAssetMaterialization, "encode sticker image", err)
	}
	if err := f.Close(); err != nil {
		return "", newError(KindAssetMaterialization, "persist sticker image", err)
	}

	m.logger.Debug().
		Str("sticker", sticker.ID).
		Str("format", format).
		Str("path", dest).
		Msg("sticker materialized")

	return dest, nil
}

func (m *Materializer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
