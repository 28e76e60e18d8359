package safety

import (
	"regexp"
	"strings"
)

var aiRevealPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bas an ai\b`),
	regexp.MustCompile(`(?i)\bi'm an ai\b`),
	regexp.MustCompile(`(?i)\bi am an ai\b`),
	regexp.MustCompile(`(?i)\blanguage model\b`),
	regexp.MustCompile(`(?i)\bi don'?t have feelings\b`),
	regexp.MustCompile(`(?i)\bi was programmed\b`),
	regexp.MustCompile(`(?i)\bi can'?t experience\b`),
	regexp.MustCompile(`(?i)\bmy training( data)?\b`),
	regexp.MustCompile(`(?i)\bi'?m a (chat)?bot\b`),
	regexp.MustCompile(`(?i)\bi'?m not (a )?human\b`),
	regexp.MustCompile(`(?i)\bartificial intelligence\b`),
	regexp.MustCompile(`(?i)\bneural network\b`),
	regexp.MustCompile(`(?i)\bi don'?t have (personal )?(experiences?|emotions?|opinions?)\b`),
	regexp.MustCompile(`(?i)\bi appreciate your patience\b`),
	regexp.MustCompile(`(?i)\bi understand your concern\b`),
	regexp.MustCompile(`(?i)\bi'?m here to (help|assist)\b`),
	regexp.MustCompile(`(?i)\bhow can i (help|assist) you\b`),
	regexp.MustCompile(`(?i)\bis there anything else\b`),
	regexp.MustCompile(`(?i)\blet me know if you need\b`),
	// Vietnamese. \b is ASCII-only in RE2, so it is only used next to ASCII letters.
	regexp.MustCompile(`(?i)\btôi là (một )?ai\b`),
	regexp.MustCompile(`(?i)\btôi là (một )?(chat)?bot\b`),
	regexp.MustCompile(`(?i)\btôi không phải (là )?người`),
	regexp.MustCompile(`(?i)mô hình ngôn ngữ`),
	regexp.MustCompile(`(?i)trí tuệ nhân tạo`),
}

var assistantPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)I appreciate your patience[.!]?\s*`),
	regexp.MustCompile(`(?i)I understand your concern[.!]?\s*`),
	regexp.MustCompile(`(?i)Is there anything else I can help (you )?with\??`),
	regexp.MustCompile(`(?i)Let me know if you need anything else[.!]?\s*`),
	regexp.MustCompile(`(?i)I'?m here to help[.!]?\s*`),
	regexp.MustCompile(`(?i)How can I assist you\??`),
}

// DetectAIReveal reports whether text sounds like an assistant admitting what it is
func DetectAIReveal(text string) bool {
	for _, p := range aiRevealPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// CleanAIReveal strips stock assistant phrases from text
func CleanAIReveal(text string) string {
	for _, p := range assistantPhrases {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
