package captions

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Segment is one timed caption event.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

type json3Document struct {
	Events []struct {
		TStartMs    float64 `json:"tStartMs"`
		DDurationMs float64 `json:"dDurationMs"`
		Segs        []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

var ErrNoEvents = errors.New("caption document has no events")

// ParseJSON3 decodes a json3 caption document. Events without segments are
// skipped; segments within one event are concatenated as-is.
func ParseJSON3(body []byte) ([]Segment, error) {
	var doc json3Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode caption document")
	}
	if doc.Events == nil {
		return nil, ErrNoEvents
	}

	segments := make([]Segment, 0, len(doc.Events))
	for _, ev := range doc.Events {
		if len(ev.Segs) == 0 {
			continue
		}
		var sb strings.Builder
		for _, s := range ev.Segs {
			sb.WriteString(s.UTF8)
		}
		text := NormalizeText(sb.String())
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Start:    ev.TStartMs / 1000,
			Duration: ev.DDurationMs / 1000,
			Text:     text,
		})
	}
	return segments, nil
}

// JoinSegments concatenates segment text with single spaces.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return NormalizeText(strings.Join(parts, " "))
}

// Duration is the end time of the last segment, in seconds.
func Duration(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	last := segments[len(segments)-1]
	return last.Start + last.Duration
}

// NormalizeText collapses whitespace runs to single spaces and trims.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
