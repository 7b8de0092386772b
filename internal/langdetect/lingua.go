package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// MinLetters is the shortest sample, in letters, worth sending to the detector.
const MinLetters = 6

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect guesses the ISO 639-1 code of text. It returns "" when the sample is
// too short, the detector is unsure, or accept rejects the guess. A nil accept
// takes any two-letter code.
func Detect(text string, accept func(code string) bool) string {
	sample := strings.TrimSpace(text)
	if countLetters(sample) < MinLetters {
		return ""
	}

	detected, ok := getDetector().DetectLanguageOf(sample)
	if !ok {
		return ""
	}

	code := strings.ToLower(detected.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	if accept != nil && !accept(code) {
		return ""
	}
	return code
}

func countLetters(sample string) int {
	n := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})
	return detector
}
