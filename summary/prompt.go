package summary

import (
	"fmt"

	"github.com/nijaru/yt-summarizer/utils"
)

// MaxTranscriptChars bounds the transcript embedded in a prompt.
const MaxTranscriptChars = 100000

var languageNames = map[string]string{
	"zh-TW": "Traditional Chinese (繁體中文)",
	"zh-CN": "Simplified Chinese (简体中文)",
	"en":    "English",
	"ja":    "Japanese (日本語)",
	"ko":    "Korean (한국어)",
}

// LanguageName returns the prompt name for a language code, English when unknown.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "English"
}

const promptTemplate = `Please analyze this YouTube video transcript and provide a comprehensive summary in %s.

Your summary should include:
1. A title that reflects the main topic
%s
3. Main ideas and conclusions
4. Around 600-800 words total

Format your response in markdown with:
- ## Headers for sections
- **Bold** for key terms
- - Bullet points for lists
%s

Here is the transcript:

%s`

func BuildPrompt(transcript, language string, includeTimestamps bool) string {
	pointsLine := "2. Key discussion points in chronological order"
	timestampLine := ""
	if includeTimestamps {
		pointsLine = "2. Key discussion points with approximate timestamps (use [MM:SS] or [HH:MM:SS] format)"
		timestampLine = "- [MM:SS] or [HH:MM:SS] format for timestamps when applicable"
	}
	return fmt.Sprintf(promptTemplate,
		LanguageName(language),
		pointsLine,
		timestampLine,
		utils.Truncate(transcript, MaxTranscriptChars, "..."),
	)
}
