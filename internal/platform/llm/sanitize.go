package llm

import (
	"regexp"
	"strings"
)

var (
	thinkBlock  = regexp.MustCompile(`(?is)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	thinkOpen   = regexp.MustCompile(`(?is)<think(?:ing)?>(.*)$`)
	strayTag    = regexp.MustCompile(`(?i)</?think(?:ing)?>`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	metaPrefix  = regexp.MustCompile(`(?i)^(okay|ok|alright|hmm+|well)?[,.]?\s*(so\s+)?(let me (think|see|analy[sz]e|consider|figure)|i need to (figure|think|respond|answer|consider|make sure)|the (user|patient) (is asking|asked|wants|mentioned|has asked|is describing)|my (task|goal) (is|here))\b`)
)

// Sanitize separates model reasoning from the answer. It removes <think>
// blocks (returning their text as thinking) and drops leading paragraphs that
// narrate the model's own reasoning. Filtering is best effort; when every
// paragraph looks like narration the text is kept.
func Sanitize(text string) (content, thinking string) {
	var thoughts []string
	for _, m := range thinkBlock.FindAllStringSubmatch(text, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			thoughts = append(thoughts, t)
		}
	}
	text = thinkBlock.ReplaceAllString(text, "")

	if m := thinkOpen.FindStringSubmatchIndex(text); m != nil {
		if t := strings.TrimSpace(text[m[2]:m[3]]); t != "" {
			thoughts = append(thoughts, t)
		}
		text = text[:m[0]]
	}
	text = strayTag.ReplaceAllString(text, "")

	paragraphs := paragraphRe.Split(strings.TrimSpace(text), -1)
	start := 0
	for start < len(paragraphs) && metaPrefix.MatchString(strings.TrimSpace(paragraphs[start])) {
		start++
	}
	if start > 0 && start < len(paragraphs) {
		for _, p := range paragraphs[:start] {
			thoughts = append(thoughts, strings.TrimSpace(p))
		}
		paragraphs = paragraphs[start:]
	}

	content = strings.Join(paragraphs, "\n\n")
	content = blankLines.ReplaceAllString(strings.TrimSpace(content), "\n\n")
	thinking = strings.Join(thoughts, "\n\n")
	return content, thinking
}
