// Package playlist parses HLS (M3U8) manifests, strips excluded segments and
// rewrites the manifest for flat object-storage layout.
package playlist

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/streamkit/hls-processing-service/internal/domain/port"
	"go.uber.org/zap"
)

// Segment is one #EXTINF entry with its URI resolved to an absolute URL.
type Segment struct {
	URL      string
	Duration float64
}

type Playlist struct {
	// Rewritten is the filtered manifest: essential tags verbatim, included
	// segment URIs reduced to their basename.
	Rewritten            string
	Included             []Segment
	Excluded             []Segment
	TotalDurationSeconds int
}

// essentialTags are structural tags preserved verbatim regardless of
// segment classification. Keyed by the tag prefix before ':'.
var essentialTags = map[string]struct{}{
	"#EXTM3U":               {},
	"#EXT-X-VERSION":        {},
	"#EXT-X-TARGETDURATION": {},
	"#EXT-X-MEDIA-SEQUENCE": {},
	"#EXT-X-ENDLIST":        {},
}

type Parser struct {
	fetcher port.Fetcher
	logger  *zap.Logger
}

func NewParser(fetcher port.Fetcher, logger *zap.Logger) *Parser {
	return &Parser{fetcher: fetcher, logger: logger}
}

// Parse fetches the manifest and classifies every segment as included or
// excluded. Fetch errors propagate untouched; an empty or fully-excluded
// manifest is not an error here, callers decide whether that is fatal.
func (p *Parser) Parse(ctx context.Context, manifestURL string, excludePatterns []*regexp.Regexp) (*Playlist, error) {
	text, err := p.fetcher.FetchText(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", manifestURL, err)
	}

	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("parse manifest url %s: %w", manifestURL, err)
	}

	pl := p.rewrite(text, base, excludePatterns)

	p.logger.Debug("manifest parsed",
		zap.String("url", manifestURL),
		zap.Int("included", len(pl.Included)),
		zap.Int("excluded", len(pl.Excluded)),
		zap.Int("duration_seconds", pl.TotalDurationSeconds),
	)

	return pl, nil
}

func (p *Parser) rewrite(manifest string, base *url.URL, excludePatterns []*regexp.Regexp) *Playlist {
	var lines []string
	for _, raw := range strings.Split(manifest, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			lines = append(lines, line)
		}
	}

	pl := &Playlist{}
	var out []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if isEssentialTag(line) {
			out = append(out, line)
			continue
		}

		if !strings.HasPrefix(line, "#EXTINF") {
			// Non-essential tags (#EXT-X-DISCONTINUITY and friends) and
			// stray URIs are dropped from the output.
			continue
		}

		// #EXTINF must be followed by a .ts URI; a malformed entry is
		// dropped without error.
		if i+1 >= len(lines) {
			continue
		}
		uri := lines[i+1]
		if strings.HasPrefix(uri, "#") || !strings.Contains(uri, ".ts") {
			continue
		}

		abs, err := base.Parse(uri)
		if err != nil {
			p.logger.Debug("dropping unresolvable segment uri", zap.String("uri", uri), zap.Error(err))
			i++
			continue
		}

		duration := parseExtinfDuration(line)
		seg := Segment{URL: abs.String(), Duration: duration}

		if matchesAny(excludePatterns, seg.URL) {
			pl.Excluded = append(pl.Excluded, seg)
		} else {
			pl.Included = append(pl.Included, seg)
			out = append(out, line, path.Base(abs.Path))
		}
		i++
	}

	for _, seg := range pl.Included {
		pl.TotalDurationSeconds += int(math.Floor(seg.Duration))
	}

	pl.Rewritten = strings.Join(out, "\n") + "\n"
	return pl
}

func isEssentialTag(line string) bool {
	prefix, _, _ := strings.Cut(line, ":")
	_, ok := essentialTags[prefix]
	return ok
}

func matchesAny(patterns []*regexp.Regexp, url string) bool {
	for _, p := range patterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

func parseExtinfDuration(line string) float64 {
	rest := strings.TrimPrefix(line, "#EXTINF:")
	value, _, _ := strings.Cut(rest, ",")
	duration, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return duration
}
