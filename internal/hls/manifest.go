// Package hls provides HLS manifest parsing and a software demuxer that feeds
// segments into a player.BufferSink.
package hls

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotManifest is returned when the document does not start with #EXTM3U.
var ErrNotManifest = errors.New("not an HLS manifest")

var attributePattern = regexp.MustCompile(`([A-Z0-9-]+)=("[^"]*"|[^,]*)`)

// Variant is one rendition listed in a master playlist.
type Variant struct {
	URL        string
	Bandwidth  int
	Resolution string
	Codecs     string
}

// Segment represents a single media segment
type Segment struct {
	URL      string
	Index    int
	Duration float64
	Title    string
}

// Playlist is a parsed manifest. A master playlist has Variants and no
// Segments; a media playlist the other way around.
type Playlist struct {
	URL            string
	Version        string
	TargetDuration float64
	MediaSequence  int
	PlaylistType   string
	EndList        bool
	Variants       []Variant
	Segments       []Segment
}

// IsMaster reports whether the playlist lists variants rather than segments.
func (p *Playlist) IsMaster() bool {
	return len(p.Variants) > 0
}

// BestVariant returns the variant with the highest bandwidth. Ties keep the
// first listed.
func (p *Playlist) BestVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	best := p.Variants[0]
	for _, v := range p.Variants[1:] {
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best, true
}

// TotalDuration is the sum of segment durations in seconds.
func (p *Playlist) TotalDuration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// Parse reads a master or media playlist. Relative URIs are resolved against
// playlistURL.
func Parse(r io.Reader, playlistURL string) (*Playlist, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist url %q: %w", playlistURL, err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 || !strings.HasPrefix(lines[0], "#EXTM3U") {
		return nil, ErrNotManifest
	}

	playlist := &Playlist{URL: playlistURL}
	segmentIndex := 0

	for i := 1; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			uri, ok := nextURI(lines, i)
			if !ok {
				continue
			}
			i++
			bandwidth, _ := strconv.Atoi(attrs["BANDWIDTH"])
			playlist.Variants = append(playlist.Variants, Variant{
				URL:        resolve(base, uri),
				Bandwidth:  bandwidth,
				Resolution: attrs["RESOLUTION"],
				Codecs:     attrs["CODECS"],
			})

		case strings.HasPrefix(line, "#EXTINF:"):
			infLine := strings.TrimPrefix(line, "#EXTINF:")
			parts := strings.SplitN(infLine, ",", 2)
			duration, _ := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)

			var title string
			if len(parts) > 1 {
				title = strings.TrimSpace(parts[1])
			}

			uri, ok := nextURI(lines, i)
			if !ok {
				continue
			}
			i++
			playlist.Segments = append(playlist.Segments, Segment{
				URL:      resolve(base, uri),
				Index:    segmentIndex,
				Duration: duration,
				Title:    title,
			})
			segmentIndex++

		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			playlist.Version = strings.TrimPrefix(line, "#EXT-X-VERSION:")
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if d, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64); err == nil {
				playlist.TargetDuration = d
			}
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if seq, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:")); err == nil {
				playlist.MediaSequence = seq
			}
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			playlist.PlaylistType = strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:")
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			playlist.EndList = true
		}
	}

	if !playlist.IsMaster() && len(playlist.Segments) == 0 {
		return nil, fmt.Errorf("playlist %s has no variants or segments", playlistURL)
	}
	return playlist, nil
}

// nextURI returns the URI line that follows the tag at line i.
func nextURI(lines []string, i int) (string, bool) {
	if i+1 >= len(lines) || strings.HasPrefix(lines[i+1], "#") {
		return "", false
	}
	return lines[i+1], true
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attributePattern.FindAllStringSubmatch(list, -1) {
		attrs[m[1]] = strings.Trim(m[2], `"`)
	}
	return attrs
}
