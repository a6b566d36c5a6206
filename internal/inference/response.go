package inference

import (
	"regexp"
	"strings"
)

// maxResponseLength bounds the extracted response per the "truncated
// to a bounded length" requirement.
const maxResponseLength = 4000

// turnMarkers delimit the most recent agent turn. The exact markers are not
// fully specified by the source ( open question); these
// are the Claude Code CLI's conventional markers, treated as best-effort.
var (
	assistantTurnStart = regexp.MustCompile(`^\s*[●⏺]\s?`)
	userEchoLine = regexp.MustCompile(`^\s*>\s`)
)

// ExtractResponse scans backward from the tail of capture for the most
// recent agent turn, excluding echoed user input.
// If no markers are found it falls back to the largest non-blank tail block.
func ExtractResponse(capture string) string {
	lines:= strings.Split(capture, "\n")

	if resp, ok:= extractByMarkers(lines); ok {
		return truncate(resp)
	}
	return truncate(largestNonBlankBlock(lines))
}

func extractByMarkers(lines []string) (string, bool) {
	// Find the last line that looks like an assistant turn marker.
	start:= -1
	for i:= len(lines) - 1; i >= 0; i-- {
		if assistantTurnStart.MatchString(lines[i]) {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}

	end:= len(lines)
	for i:= start + 1; i < len(lines); i++ {
		if userEchoLine.MatchString(lines[i]) {
			end = i
			break
		}
	}

	block:= lines[start:end]
	text:= strings.TrimSpace(strings.Join(block, "\n"))
	if text == "" {
		return "", false
	}
	return text, true
}

// largestNonBlankBlock returns the longest contiguous run of non-blank
// lines in the tail, used when no turn markers are present.
func largestNonBlankBlock(lines []string) string {
	bestStart, bestEnd:= 0, 0
	curStart:= -1
	for i, line:= range lines {
		if strings.TrimSpace(line) != "" {
			if curStart == -1 {
				curStart = i
			}
			continue
		}
		if curStart != -1 {
			if i-curStart > bestEnd-bestStart {
				bestStart, bestEnd = curStart, i
			}
			curStart = -1
		}
	}
	if curStart != -1 && len(lines)-curStart > bestEnd-bestStart {
		bestStart, bestEnd = curStart, len(lines)
	}
	return strings.TrimSpace(strings.Join(lines[bestStart:bestEnd], "\n"))
}

func truncate(s string) string {
	if len(s) <= maxResponseLength {
		return s
	}
	return s[:maxResponseLength]
}
