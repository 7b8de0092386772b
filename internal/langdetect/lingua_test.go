package langdetect

import "testing"

func TestDetectSkipsShortSamples(t *testing.T) {
	t.Parallel()

	if got := Detect("  ok ", nil); got != "" {
		t.Fatalf("expected no guess for short sample, got %q", got)
	}
	if got := Detect("12345 67890 !!", nil); got != "" {
		t.Fatalf("expected no guess without letters, got %q", got)
	}
}

func TestDetectEnglishSentence(t *testing.T) {
	t.Parallel()

	sample := "The weather in the mountains was cold and windy all week, so we stayed inside and read books."
	if got := Detect(sample, nil); got != "en" {
		t.Fatalf("expected en, got %q", got)
	}
	if got := Detect(sample, func(code string) bool { return code == "fr" }); got != "" {
		t.Fatalf("expected rejected guess, got %q", got)
	}
}
