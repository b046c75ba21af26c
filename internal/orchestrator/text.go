package orchestrator

import "strings"

// similarityThreshold is the share of matching positions above which a
// revision counts as unchanged.
const similarityThreshold = 0.9

var instructionPatterns = []string{
	"ORIGINAL OUTPUT:",
	"FEEDBACK:",
	"ORIGINAL QUERY:",
	"Provide a complete revised version",
	"Please revise the following",
}

// isApproved reports whether a review reply approves the draft.
func isApproved(review string) bool {
	return strings.Contains(strings.ToUpper(review), "APPROVED")
}

// isSimilar compares two texts position by position. Texts whose lengths
// differ by 10 or more characters are never similar.
func isSimilar(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb)-len(ra) >= 10 {
		return false
	}
	if len(rb) == 0 {
		return true
	}
	same := 0
	for i := range ra {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same)/float64(len(rb)) > similarityThreshold
}

// cleanReply strips prompt scaffolding a provider echoed back. When any
// instruction marker is present, the first line free of markers is kept.
func cleanReply(text string) string {
	if !containsInstruction(text) {
		return text
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !containsInstruction(line) {
			return line
		}
	}
	return text
}

func containsInstruction(s string) bool {
	for _, p := range instructionPatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
