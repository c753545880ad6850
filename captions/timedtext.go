package captions

import "net/url"

// DefaultLanguages is the order the direct captions endpoint is probed in:
// English variants first, then major world languages.
var DefaultLanguages = []string{
	"en", "en-US", "en-GB",
	"es", "pt", "fr", "de", "it", "ru",
	"ja", "ko", "zh-Hans", "zh-Hant", "zh-CN", "zh-TW",
	"hi", "ar", "id", "tr", "vi",
}

// TimedTextURL builds a direct captions endpoint request. auto selects the
// auto-generated variant.
func TimedTextURL(base, videoID, lang string, auto bool) string {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)
	q.Set("fmt", "json3")
	if auto {
		q.Set("kind", "asr")
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	existing := u.Query()
	for k, vs := range q {
		existing[k] = vs
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

// WatchURL builds the watch page URL for a video id.
func WatchURL(base, videoID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?v=" + url.QueryEscape(videoID)
	}
	q := u.Query()
	q.Set("v", videoID)
	u.RawQuery = q.Encode()
	return u.String()
}

// MirrorURL builds the legacy mirror request for a video id.
func MirrorURL(base, watchBase, videoID string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("serverUrl", WatchURL(watchBase, videoID))
	u.RawQuery = q.Encode()
	return u.String()
}

// ThumbnailURL returns the high resolution thumbnail for a video id.
func ThumbnailURL(videoID string) string {
	return "https://img.youtube.com/vi/" + url.PathEscape(videoID) + "/maxresdefault.jpg"
}
