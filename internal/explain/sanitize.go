package explain

import "regexp"

// maxCorpusBytes bounds how much log text is sent to the model; only the
// tail is kept since recent lines matter most.
const maxCorpusBytes = 8000

var sanitizePatterns = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*\S+`), "$1=[MASKED]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[=:]\s*\S+`), "$1=[MASKED]"},
	{regexp.MustCompile(`(?i)(token|secret)\s*[=:]\s*\S+`), "$1=[MASKED]"},
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [MASKED]"},
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
}

// sanitize masks credentials and identifying data in a log corpus and trims
// it to the last maxCorpusBytes bytes.
func sanitize(text string) string {
	if len(text) > maxCorpusBytes {
		text = text[len(text)-maxCorpusBytes:]
	}
	for _, p := range sanitizePatterns {
		text = p.re.ReplaceAllString(text, p.mask)
	}
	return text
}
