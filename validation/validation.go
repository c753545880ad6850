package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// pathShapes are the path prefixes whose next segment is the video id.
var pathShapes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Message: "error: URL is required"}
	}

	rawURL = strings.TrimSpace(rawURL)

	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return &ValidationError{Message: "error: invalid URL format"}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Message: "error: URL must start with http or https"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Message: "error: URL must have a host"}
	}

	return nil
}

// ValidateVideoID reports whether id looks like a host-assigned video id.
func ValidateVideoID(id string) error {
	if !videoIDPattern.MatchString(id) {
		return &ValidationError{Message: fmt.Sprintf("error: invalid video id %q", id)}
	}
	return nil
}

// ExtractVideoID derives the video id from a watch, short-link, embed or
// shorts URL. It returns false for any other shape instead of a partial id.
func ExtractVideoID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch {
	case host == "youtu.be":
		id = firstSegment(u.Path)
	case u.Path == "/watch" || u.Path == "/watch/":
		id = u.Query().Get("v")
	default:
		for _, prefix := range pathShapes {
			if strings.HasPrefix(u.Path, prefix) {
				id = firstSegment(strings.TrimPrefix(u.Path, prefix))
				break
			}
		}
	}

	if ValidateVideoID(id) != nil {
		return "", false
	}
	return id, true
}

// ResolveVideoID accepts either a URL or a bare video id.
func ResolveVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "/") {
		return ExtractVideoID(input)
	}
	if ValidateVideoID(input) != nil {
		return "", false
	}
	return input, true
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
