package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNotPlaylist = errors.New("not an HLS playlist")
	ErrNoSegments  = errors.New("playlist has no segments")
)

// Segment is one media segment entry.
type Segment struct {
	Duration float64 `json:"duration"`
	URI      string  `json:"uri"`
}

// MediaPlaylist is a VOD HLS media playlist.
type MediaPlaylist struct {
	TargetDuration int       `json:"targetDuration"`
	MediaSequence  int       `json:"mediaSequence"`
	Segments       []Segment `json:"segments"`
	EndList        bool      `json:"endList"`
}

// Parse reads an HLS media playlist. Tags it does not model are skipped.
func Parse(r io.Reader) (*MediaPlaylist, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	p := &MediaPlaylist{}
	first := true
	pending := -1.0

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first {
			if line != "#EXTM3U" {
				return nil, ErrNotPlaylist
			}
			first = false
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			value := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(value, ','); i >= 0 {
				value = value[:i]
			}
			d, err := strconv.ParseFloat(value, 64)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("invalid segment duration %q", value)
			}
			pending = d
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))
			if err != nil {
				return nil, fmt.Errorf("invalid target duration: %w", err)
			}
			p.TargetDuration = v
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			if err != nil {
				return nil, fmt.Errorf("invalid media sequence: %w", err)
			}
			p.MediaSequence = v
		case line == "#EXT-X-ENDLIST":
			p.EndList = true
		case strings.HasPrefix(line, "#"):
		default:
			if pending < 0 {
				return nil, fmt.Errorf("segment %q without #EXTINF", line)
			}
			p.Segments = append(p.Segments, Segment{Duration: pending, URI: line})
			pending = -1
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, ErrNotPlaylist
	}
	return p, nil
}

// ParseFile parses the playlist at path and requires at least one segment.
func ParseFile(path string) (*MediaPlaylist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	p, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(p.Segments) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSegments)
	}
	return p, nil
}

// WithURIs returns a copy of p whose segment URIs are produced by uri(i).
func (p *MediaPlaylist) WithURIs(uri func(index int) string) *MediaPlaylist {
	out := &MediaPlaylist{
		TargetDuration: p.TargetDuration,
		MediaSequence:  p.MediaSequence,
		EndList:        p.EndList,
		Segments:       make([]Segment, len(p.Segments)),
	}
	for i, s := range p.Segments {
		out.Segments[i] = Segment{Duration: s.Duration, URI: uri(i)}
	}
	return out
}

// Duration returns the sum of segment durations.
func (p *MediaPlaylist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// Write renders p as a VOD media playlist.
func (p *MediaPlaylist) Write(w io.Writer) error {
	target := p.TargetDuration
	for _, s := range p.Segments {
		if d := int(math.Ceil(s.Duration)); d > target {
			target = d
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#EXTM3U")
	fmt.Fprintln(bw, "#EXT-X-VERSION:3")
	fmt.Fprintf(bw, "#EXT-X-TARGETDURATION:%d\n", target)
	fmt.Fprintf(bw, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.MediaSequence)
	fmt.Fprintln(bw, "#EXT-X-PLAYLIST-TYPE:VOD")
	for _, s := range p.Segments {
		fmt.Fprintf(bw, "#EXTINF:%s,\n", strconv.FormatFloat(s.Duration, 'f', 6, 64))
		fmt.Fprintln(bw, s.URI)
	}
	if p.EndList {
		fmt.Fprintln(bw, "#EXT-X-ENDLIST")
	}
	return bw.Flush()
}
