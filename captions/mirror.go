package captions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var mirrorBlob = regexp.MustCompile(`(?s)\{.*\}`)

type mirrorDocument struct {
	Transcript []struct {
		Text string `json:"text"`
	} `json:"transcript"`
}

// ParseMirror extracts transcript text from the JSON blob embedded in a
// mirror service response.
func ParseMirror(body []byte) (string, error) {
	blob := mirrorBlob.Find(body)
	if blob == nil {
		return "", errors.New("mirror response has no JSON blob")
	}
	var doc mirrorDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return "", errors.Wrap(err, "failed to decode mirror blob")
	}
	if len(doc.Transcript) == 0 {
		return "", errors.New("mirror blob has no transcript")
	}
	parts := make([]string, 0, len(doc.Transcript))
	for _, item := range doc.Transcript {
		parts = append(parts, item.Text)
	}
	return NormalizeText(strings.Join(parts, " ")), nil
}
