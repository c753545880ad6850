package captions

import "strings"

type Kind string

const (
	KindManual        Kind = "manual"
	KindAutoGenerated Kind = "autoGenerated"
)

// Track describes one caption track offered by the host page. FetchURL is a
// short-lived signed URL and must not be cached.
type Track struct {
	LanguageCode string `json:"languageCode"`
	Kind         Kind   `json:"kind"`
	Name         string `json:"name,omitempty"`
	FetchURL     string `json:"fetchUrl,omitempty"`
}

func (t Track) AutoGenerated() bool {
	return t.Kind == KindAutoGenerated
}

// SelectTrack picks the track to fetch: the first auto-generated track when
// any exists, otherwise the first track in host order.
func SelectTrack(tracks []Track) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	for _, t := range tracks {
		if t.AutoGenerated() {
			return t, true
		}
	}
	return tracks[0], true
}

// SelectByLanguage walks langs in order preferring manual tracks, then any
// track in a preferred language, then the first track.
func SelectByLanguage(tracks []Track, langs []string) (Track, bool) {
	if len(tracks) == 0 {
		return Track{}, false
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if strings.EqualFold(t.LanguageCode, lang) && !t.AutoGenerated() {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if strings.EqualFold(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	return tracks[0], true
}

// trackFromMap converts one loosely-typed host track object.
func trackFromMap(m map[string]any) (Track, bool) {
	t := Track{
		LanguageCode: stringAt(m, "languageCode"),
		FetchURL:     stringAt(m, "baseUrl"),
		Name:         trackName(m),
		Kind:         KindManual,
	}
	if t.FetchURL == "" {
		t.FetchURL = stringAt(m, "url")
	}
	if t.LanguageCode == "" && t.FetchURL == "" {
		return Track{}, false
	}

	kind := stringAt(m, "kind")
	vss := stringAt(m, "vssId")
	if vss == "" {
		vss = stringAt(m, "vss_id")
	}
	if kind == "asr" || strings.HasPrefix(vss, "a.") || strings.Contains(strings.ToLower(t.Name), "auto-generated") {
		t.Kind = KindAutoGenerated
	}
	return t, true
}

func trackName(m map[string]any) string {
	if s := stringAt(m, "displayName"); s != "" {
		return s
	}
	if s, ok := dig(m, "name", "simpleText"); ok {
		if str, ok := s.(string); ok {
			return str
		}
	}
	if runs, ok := dig(m, "name", "runs"); ok {
		var sb strings.Builder
		for _, r := range asSlice(runs) {
			if rm, ok := r.(map[string]any); ok {
				sb.WriteString(stringAt(rm, "text"))
			}
		}
		return sb.String()
	}
	return stringAt(m, "name")
}

// TracksFromList converts a loosely-typed host track list, skipping entries
// that are not objects.
func TracksFromList(list []any) []Track {
	tracks := make([]Track, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := trackFromMap(m); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}
