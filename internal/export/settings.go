package export

// Quality selects an encoding quality tier
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityHigh     Quality = "high"
	QualityVeryHigh Quality = "very_high"
)

// CRF maps the tier to an x264 constant rate factor
func (q Quality) CRF() int {
	switch q {
	case QualityLow:
		return 30
	case QualityHigh:
		return 20
	case QualityVeryHigh:
		return 16
	default:
		return 23
	}
}

// Settings describes the requested output artifact. Duration is the
// total export span in seconds and already reflects any clip trims; it
// is never adjusted again downstream.
type Settings struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	FPS       float64 `yaml:"fps"`
	Quality   Quality `yaml:"quality"`
	Duration  float64 `yaml:"duration"`
	Container string  `yaml:"container"`
}

// ShorterSide returns the smaller canvas dimension, the basis for
// sticker size percentages.
func (s Settings) ShorterSide() int {
	if s.Width < s.Height {
		return s.Width
	}
	return s.Height
}
