// Package project loads the YAML project description consumed by the
// CLI: a timeline, a media table, and export settings. This is a
// driver-side convenience format, not the editor's persistence format.
package project

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Quriosity-agent/qcut-sub012/internal/export"
	"github.com/Quriosity-agent/qcut-sub012/internal/ffmpeg"
	"github.com/Quriosity-agent/qcut-sub012/internal/timeline"
)

// Project is a loaded export job description
type Project struct {
	Name     string
	Timeline *timeline.Timeline
	Media    timeline.Library
	Settings export.Settings
}

type projectFile struct {
	Name     string                `yaml:"name"`
	Media    []*timeline.MediaItem `yaml:"media"`
	Tracks   []trackFile           `yaml:"tracks"`
	Settings export.Settings       `yaml:"settings"`
}

type trackFile struct {
	Name     string      `yaml:"name"`
	Elements []yaml.Node `yaml:"elements"`
}

type elementHeader struct {
	Type string `yaml:"type"`
}

// Load parses a project file into a timeline and media table
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}

	media := make(timeline.Library, len(pf.Media))
	for _, item := range pf.Media {
		if item.ID == "" {
			return nil, fmt.Errorf("media item without id")
		}
		media[item.ID] = item
	}

	tl := &timeline.Timeline{}
	for _, tf := range pf.Tracks {
		track := timeline.Track{Name: tf.Name}
		for i := range tf.Elements {
			el, err := decodeElement(&tf.Elements[i], media)
			if err != nil {
				return nil, fmt.Errorf("track %q element %d: %w", tf.Name, i, err)
			}
			track.Elements = append(track.Elements, el)
		}
		tl.Tracks = append(tl.Tracks, track)
	}

	return &Project{
		Name:     pf.Name,
		Timeline: tl,
		Media:    media,
		Settings: pf.Settings,
	}, nil
}

// decodeElement dispatches on the element's type tag
func decodeElement(node *yaml.Node, media timeline.Library) (timeline.Element, error) {
	var header elementHeader
	if err := node.Decode(&header); err != nil {
		return nil, err
	}

	switch header.Type {
	case "clip":
		var clip timeline.MediaClip
		if err := node.Decode(&clip); err != nil {
			return nil, err
		}
		// The clip's intrinsic duration comes from the media table unless
		// the project pinned one explicitly.
		if clip.Duration == 0 {
			if item := media.Get(clip.MediaID); item != nil {
				clip.Duration = item.Duration
			}
		}
		return clip, nil

	case "text":
		var text timeline.TextOverlay
		if err := node.Decode(&text); err != nil {
			return nil, err
		}
		return text, nil

	case "sticker":
		var sticker timeline.StickerOverlay
		if err := node.Decode(&sticker); err != nil {
			return nil, err
		}
		return sticker, nil

	case "effect":
		var effect timeline.Effect
		if err := node.Decode(&effect); err != nil {
			return nil, err
		}
		return effect, nil

	default:
		return nil, fmt.Errorf("unknown element type %q", header.Type)
	}
}

// ProbeDurations fills missing intrinsic durations and audio flags of
// local media items via ffprobe. Items without a local path are left
// untouched.
func (p *Project) ProbeDurations(ctx context.Context, ff *ffmpeg.Executor) error {
	for _, item := range p.Media {
		if item.Path == "" || item.Kind == timeline.MediaImage {
			continue
		}
		if item.Duration > 0 {
			continue
		}
		info, err := ff.Probe(ctx, item.Path)
		if err != nil {
			return fmt.Errorf("failed to probe media %q: %w", item.ID, err)
		}
		item.Duration = info.Duration
		item.HasAudio = info.HasAudio
	}

	// Clips inherit freshly probed durations.
	for ti := range p.Timeline.Tracks {
		for ei, el := range p.Timeline.Tracks[ti].Elements {
			clip, ok := el.(timeline.MediaClip)
			if !ok || clip.Duration > 0 {
				continue
			}
			if item := p.Media.Get(clip.MediaID); item != nil {
				clip.Duration = item.Duration
				p.Timeline.Tracks[ti].Elements[ei] = clip
			}
		}
	}

	return nil
}
