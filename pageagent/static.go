package pageagent

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/nijaru/yt-summarizer/captions"
)

var titleSelectors = []string{
	"h1.ytd-watch-metadata yt-formatted-string",
	"h1.ytd-video-primary-info-renderer",
}

// StaticOpener opens pages by downloading their HTML. The resulting pages
// have no live player, panel or frames; only snapshot-based strategies run.
type StaticOpener struct {
	fetcher captions.Fetcher
}

func NewStaticOpener(fetcher captions.Fetcher) *StaticOpener {
	return &StaticOpener{fetcher: fetcher}
}

func (o *StaticOpener) Open(ctx context.Context, rawURL string) (Page, error) {
	resp, err := o.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("page returned status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}
	return newStaticPage(rawURL, doc, o.fetcher), nil
}

type staticPage struct {
	url      string
	snapshot Snapshot
	fetcher  captions.Fetcher
}

func newStaticPage(rawURL string, doc *goquery.Document, fetcher captions.Fetcher) *staticPage {
	snap := Snapshot{URL: rawURL, Title: documentTitle(doc)}
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if text == "" {
			return
		}
		snap.Scripts = append(snap.Scripts, text)
		// A browser would have evaluated this assignment into the global.
		if snap.PlayerResponse == nil {
			if pr, ok := captions.AssignedPlayerResponse(text); ok {
				snap.PlayerResponse = pr
			}
		}
	})
	return &staticPage{url: rawURL, snapshot: snap, fetcher: fetcher}
}

func documentTitle(doc *goquery.Document) string {
	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if t, ok := doc.Find(`meta[name="title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	t := strings.TrimSpace(doc.Find("title").First().Text())
	return strings.TrimSpace(strings.TrimSuffix(t, "- YouTube"))
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := p.snapshot
	return &snap, nil
}

func (p *staticPage) Fetcher() captions.Fetcher { return p.fetcher }

func (p *staticPage) Close() error { return nil }
