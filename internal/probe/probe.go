// SPDX-License-Identifier: MIT

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/streamgate/streamgate/internal/cache"
	"github.com/streamgate/streamgate/internal/core/pathutil"
	"github.com/streamgate/streamgate/internal/metrics"
)

// DefaultTimeout bounds a single ffprobe invocation.
const DefaultTimeout = 20 * time.Second

// cacheTTL keeps probe reports warm between a metadata call and the start
// that usually follows it.
const cacheTTL = 30 * time.Second

// Prober runs ffprobe against source URLs.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	cache       cache.Cache
	logger      zerolog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout overrides the per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// WithCache attaches a report cache keyed by source URL.
func WithCache(c cache.Cache) Option {
	return func(p *Prober) { p.cache = c }
}

// New creates a Prober using the given ffprobe binary.
func New(ffprobePath string, logger zerolog.Logger, opts ...Option) *Prober {
	p := &Prober{
		ffprobePath: ffprobePath,
		timeout:     DefaultTimeout,
		cache:       cache.NewNoOpCache(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ffprobe JSON shapes (only the fields we read).
type probeData struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Profile   string `json:"profile,omitempty"`
	Level     int    `json:"level,omitempty"`
	Tags      struct {
		Language string `json:"language,omitempty"`
		Title    string `json:"title,omitempty"`
	} `json:"tags,omitempty"`
}

// Probe inspects the source URL and returns a condensed report. The call
// blocks until ffprobe terminates or the deadline expires; there are no
// retries at this layer.
func (p *Prober) Probe(ctx context.Context, sourceURL string) (*Report, error) {
	if cached, ok := p.cache.Get(sourceURL); ok {
		var report Report
		if err := json.Unmarshal(cached, &report); err == nil {
			return &report, nil
		}
		p.cache.Delete(sourceURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		sourceURL,
	}

	start := time.Now()
	// #nosec G204 -- binary path comes from configuration, args are fixed
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	out, err := cmd.Output()
	if err != nil {
		metrics.ProbeDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	metrics.ProbeDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("ffprobe output unparsable: %w", err)
	}

	report, err := buildReport(data)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("event", "probe.completed").
		Str("video_codec", report.VideoCodec).
		Int("audio_streams", len(report.Audio)).
		Int("subtitle_streams", len(report.Subtitles)).
		Dur("duration_ms", time.Since(start)).
		Msg("source probed")

	if encoded, err := json.Marshal(report); err == nil {
		p.cache.Set(sourceURL, encoded, cacheTTL)
	}

	return report, nil
}

func buildReport(data probeData) (*Report, error) {
	report := &Report{}

	streams := append([]probeStream(nil), data.Streams...)
	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].Index < streams[j].Index
	})

	for _, s := range streams {
		switch s.CodecType {
		case "video":
			// First video stream by index wins, later ones are ignored.
			if report.VideoCodec == "" {
				report.VideoCodec = s.CodecName
				report.VideoProfile = s.Profile
				report.VideoLevel = s.Level
			}
		case "audio":
			ordinal := len(report.Audio)
			report.Audio = append(report.Audio, AudioStream{
				Index:   s.Index,
				Ordinal: ordinal,
				Lang:    normalizeLang(s.Tags.Language),
				Title:   pathutil.SanitizeTitle(s.Tags.Title, fmt.Sprintf("Track_%d", ordinal+1)),
				Codec:   s.CodecName,
			})
		case "subtitle":
			if !IsTextSubtitleCodec(s.CodecName) {
				continue
			}
			report.Subtitles = append(report.Subtitles, SubtitleStream{
				Index: s.Index,
				Lang:  normalizeLang(s.Tags.Language),
				Title: pathutil.SanitizeTitle(s.Tags.Title, fmt.Sprintf("Subtitle_%d", len(report.Subtitles)+1)),
				Codec: s.CodecName,
			})
		}
	}

	if report.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found")
	}

	if data.Format.Duration != "" {
		if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
			report.Duration = d
		}
	}

	return report, nil
}

// normalizeLang canonicalizes a language tag, defaulting to "und".
func normalizeLang(tag string) string {
	if tag == "" {
		return "und"
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "und"
	}
	base, conf := parsed.Base()
	if conf == language.No {
		return "und"
	}
	return base.ISO3()
}
