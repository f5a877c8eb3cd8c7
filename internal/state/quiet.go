package state

import (
	"regexp"
	"strings"
)

// #region quiet-phrases
// quietPhrases are participant requests for the facilitator to stay out of
// the conversation for a while.
var quietPhrases = []string{
	"please be quiet",
	"be quiet",
	"quiet please",
	"stop talking",
	"stop interrupting",
	"don't interrupt",
	"we've got this",
	"we're fine",
	"let us talk",
	"hold on bot",
	"not now",
	"stay quiet",
	"zip it",
	"pipe down",
	"hush",
	"shh",
}

// IsQuietRequest reports whether text contains a quiet request.
func IsQuietRequest(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return false
	}
	for _, p := range quietPhrases {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// #endregion quiet-phrases

// #region override-phrases
// overridePatterns are requests to let the current discussion run on. They
// open an override grace window during which drift is tolerated.
var overridePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bkeep\s+going\b`),
	regexp.MustCompile(`\blet'?s?\s+continue\b`),
	regexp.MustCompile(`\bwe'?re?\s+not\s+done\b`),
	regexp.MustCompile(`\bmore\s+time\b`),
	regexp.MustCompile(`\bextend\b`),
}

// IsOverrideRequest reports whether text asks to keep the current discussion going.
func IsOverrideRequest(text string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return false
	}
	for _, p := range overridePatterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// #endregion override-phrases
