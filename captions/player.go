package captions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// PlayerResponse is the host's player configuration object, kept loosely
// typed because its shape drifts between page revisions.
type PlayerResponse map[string]any

func ParsePlayerResponse(raw []byte) (PlayerResponse, error) {
	var pr PlayerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, errors.Wrap(err, "failed to decode player response")
	}
	return pr, nil
}

type trackAccessor func(PlayerResponse) ([]any, bool)

// Accessors are tried in order; the first that yields a non-empty list wins.
var trackAccessors = []trackAccessor{
	tracklistRendererTracks,
	nestedPlayerResponseTracks,
	topLevelTracks,
	tracklistTracks,
}

func tracklistRendererTracks(p PlayerResponse) ([]any, bool) {
	return sliceAt(p, "captions", "playerCaptionsTracklistRenderer", "captionTracks")
}

func nestedPlayerResponseTracks(p PlayerResponse) ([]any, bool) {
	return sliceAt(p, "playerResponse", "captions", "playerCaptionsTracklistRenderer", "captionTracks")
}

func topLevelTracks(p PlayerResponse) ([]any, bool) {
	return sliceAt(p, "captionTracks")
}

// tracklistTracks reads the shape returned by the embedded player's info
// messages.
func tracklistTracks(p PlayerResponse) ([]any, bool) {
	if list, ok := sliceAt(p, "captions", "tracklist"); ok {
		return list, true
	}
	return sliceAt(p, "tracklist")
}

// CaptionTracks returns the caption tracks declared by the response.
func (p PlayerResponse) CaptionTracks() ([]Track, bool) {
	if p == nil {
		return nil, false
	}
	for _, accessor := range trackAccessors {
		list, ok := accessor(p)
		if !ok {
			continue
		}
		if tracks := TracksFromList(list); len(tracks) > 0 {
			return tracks, true
		}
	}
	return nil, false
}

// Title returns the video title recorded in the response, if any.
func (p PlayerResponse) Title() (string, bool) {
	v, ok := dig(map[string]any(p), "videoDetails", "title")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

var (
	playerResponseAssign = regexp.MustCompile(`ytInitialPlayerResponse\s*=\s*\{`)
	captionTracksKey     = regexp.MustCompile(`"captionTracks"\s*:\s*\[`)
)

// ScanScripts looks through inline script bodies for caption track data and
// returns the tracks from the first script that yields any.
func ScanScripts(scripts []string) ([]Track, bool) {
	for _, script := range scripts {
		if !strings.Contains(script, "captionTracks") {
			continue
		}
		if tracks, ok := scanScript(script); ok {
			return tracks, true
		}
		// Player config embedded as a JSON string literal.
		if strings.Contains(script, `\"captionTracks\"`) {
			if tracks, ok := scanScript(unescapeEmbedded(script)); ok {
				return tracks, true
			}
		}
	}
	return nil, false
}

// AssignedPlayerResponse parses the object a script assigns to the
// ytInitialPlayerResponse global.
func AssignedPlayerResponse(script string) (PlayerResponse, bool) {
	loc := playerResponseAssign.FindStringIndex(script)
	if loc == nil {
		return nil, false
	}
	raw, ok := BalancedJSON(script, loc[1]-1)
	if !ok {
		return nil, false
	}
	pr, err := ParsePlayerResponse([]byte(raw))
	if err != nil {
		return nil, false
	}
	return pr, true
}

func scanScript(script string) ([]Track, bool) {
	if pr, ok := AssignedPlayerResponse(script); ok {
		if tracks, ok := pr.CaptionTracks(); ok {
			return tracks, true
		}
	}
	for _, loc := range captionTracksKey.FindAllStringIndex(script, -1) {
		raw, ok := BalancedJSON(script, loc[1]-1)
		if !ok {
			continue
		}
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			continue
		}
		if tracks := TracksFromList(list); len(tracks) > 0 {
			return tracks, true
		}
	}
	return nil, false
}

var embeddedReplacer = strings.NewReplacer(`\\u0026`, `&`, `\"`, `"`, `\/`, `/`)

func unescapeEmbedded(s string) string {
	return embeddedReplacer.Replace(s)
}

// BalancedJSON returns the JSON object or array starting at s[start],
// matching brackets outside of string literals.
func BalancedJSON(s string, start int) (string, bool) {
	if start < 0 || start >= len(s) {
		return "", false
	}
	open := s[start]
	var close byte
	switch open {
	case '{':
		close = '}'
	case '[':
		close = ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func dig(v any, path ...string) (any, bool) {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			if pr, isPR := cur.(PlayerResponse); isPR {
				m = pr
			} else {
				return nil, false
			}
		}
		cur, ok = m[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func sliceAt(p PlayerResponse, path ...string) ([]any, bool) {
	v, ok := dig(map[string]any(p), path...)
	if !ok {
		return nil, false
	}
	list := asSlice(v)
	return list, len(list) > 0
}

func asSlice(v any) []any {
	list, _ := v.([]any)
	return list
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
