package pio

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestIsErrorLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected bool
	}{
		{"gcc error", "src/main.cpp:42:5: error: 'foo' was not declared", true},
		{"uppercase error", "ERROR: build failed", true},
		{"fatal", "fatal: could not read firmware manifest", true},
		{"linker", "main.cpp.o: undefined reference to foo", true},
		{"missing file", "sensor.h: No such file or directory", true},
		{"plain output", "Compiling .pio/build/dev/src/main.cpp.o", false},
		{"warning only", "src/main.cpp:10: warning: unused variable", false},
		{"mentions errors summary", "0 errors found", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isErrorLine(tt.line))
		})
	}
}

func TestIsSeparatorLine(t *testing.T) {
	assert.True(t, isSeparatorLine(""))
	assert.True(t, isSeparatorLine("   "))
	assert.True(t, isSeparatorLine("========================"))
	assert.True(t, isSeparatorLine("----- ----- -----"))
	assert.True(t, isSeparatorLine("*** *** ***"))
	assert.False(t, isSeparatorLine("== [SUCCESS] Took 12.34 seconds =="))
	assert.False(t, isSeparatorLine("Linking .pio/build/dev/firmware.elf"))
}

func TestUploadPercent(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected int
	}{
		{"zero percent", "Writing at 0x00010000... (0 %)", 50},
		{"mid percent", "Writing at 0x0004c000... (46 %)", 73},
		{"full percent", "Writing at 0x000f0000... (100 %)", 100},
		{"no space before percent sign", "Writing at 0x00010000... (12%)", 56},
		{"wrote bytes marker", "Wrote 1044480 bytes (612345 compressed) at 0x00010000", 90},
		{"no percent at all", "Connecting........_____....", 75},
		{"over 100 clamped", "bogus (250 %)", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, uploadPercent(tt.line))
		})
	}
}

func TestBuildPercent_CreepsToFifty(t *testing.T) {
	assert.Equal(t, 0, buildPercent(1))
	assert.Equal(t, 5, buildPercent(20))
	assert.Equal(t, 50, buildPercent(200))
	assert.Equal(t, 50, buildPercent(10000), "build phase never crosses the half-way mark")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Equal(t, "", truncate("", 10))
}

func TestTruncate_NeverSplitsRune(t *testing.T) {
	// "é" is two bytes; a byte-wise cut at 4 would leave a dangling
	// continuation byte.
	s := "abcé def"
	got := truncate(s, 4)
	assert.Equal(t, "abc", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "abcé", truncate(s, 5))
	assert.Equal(t, "世", truncate("世界", 4))
}
