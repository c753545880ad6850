package captions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodySize      = 8 << 20
)

var ErrNotJSON = errors.New("response body is not a JSON document")

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Fetcher performs GET requests on behalf of extraction strategies.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// HTTPFetcher is a Fetcher over net/http throttled by a token bucket.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPFetcher returns a fetcher allowing perSecond requests per second;
// zero or less disables throttling.
func NewHTTPFetcher(client *http.Client, perSecond int) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{client: client, userAgent: defaultUserAgent}
	if perSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return f
}

func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

var fmtParam = regexp.MustCompile(`([?&])fmt=[^&#]*`)

// EnsureJSONFormat makes the track URL request json3 output.
func EnsureJSONFormat(rawURL string) string {
	if fmtParam.MatchString(rawURL) {
		return fmtParam.ReplaceAllString(rawURL, "${1}fmt=json3")
	}
	if strings.Contains(rawURL, "?") {
		return rawURL + "&fmt=json3"
	}
	return rawURL + "?fmt=json3"
}

// DecodeCaptionBody parses a caption response body, refusing anything that
// does not look like a JSON object (HTML error pages served with 200).
func DecodeCaptionBody(body []byte) ([]Segment, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotJSON
	}
	return ParseJSON3(trimmed)
}

// FetchTrack downloads a selected track and applies the length threshold.
func FetchTrack(ctx context.Context, f Fetcher, track Track) Result {
	if track.FetchURL == "" {
		return NotFound("track has no fetch url")
	}
	resp, err := f.Get(ctx, EnsureJSONFormat(track.FetchURL))
	if err != nil {
		return Failed(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return Failedf("track fetch returned status %d", resp.StatusCode)
	}
	segments, err := DecodeCaptionBody(resp.Body)
	if err != nil {
		return Failed(err.Error())
	}
	return Success(JoinSegments(segments))
}

// DescribeTrack is used in log fields.
func DescribeTrack(t Track) string {
	return fmt.Sprintf("%s/%s", t.LanguageCode, t.Kind)
}
