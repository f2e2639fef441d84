package pio

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// errorMarkers classify candidate error lines in build output.
// Matched case-insensitively.
var errorMarkers = []string{
	"error:",
	"fatal:",
	"undefined reference",
	"no such file",
}

// percentPattern matches esptool-style progress like "Writing at 0x00010000... (12 %)"
var percentPattern = regexp.MustCompile(`\((\d+)\s*%\)`)

func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isSeparatorLine reports whether the line is blank or one of the
// ===/--- banners PlatformIO prints around each phase.
func isSeparatorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, r := range trimmed {
		if r != '=' && r != '-' && r != '*' && r != ' ' {
			return false
		}
	}
	return true
}

// buildPercent maps build output volume onto the front half (0-50) of
// the overall progress scale. A typical successful build prints a few
// hundred lines, so the curve creeps rather than jumps.
func buildPercent(lineCount int) int {
	percent := lineCount / 4
	if percent > 50 {
		percent = 50
	}
	return percent
}

// uploadPercent maps one upload output line onto the back half
// (50-100) of the overall scale. "Wrote ... bytes" is the near-done
// marker; lines without a parseable percent sit at 75.
func uploadPercent(line string) int {
	if strings.Contains(line, "Wrote") && strings.Contains(line, "bytes") {
		return 90
	}
	if m := percentPattern.FindStringSubmatch(line); m != nil {
		p, err := strconv.Atoi(m[1])
		if err == nil {
			if p > 100 {
				p = 100
			}
			return 50 + p/2
		}
	}
	return 75
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so
// a multi-byte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
