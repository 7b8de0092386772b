package language

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefaultTableResolve(t *testing.T) {
	t.Parallel()

	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("load default table: %v", err)
	}

	if code, err := table.Resolve("EN", "deepl", false); err != nil || code != "en" {
		t.Fatalf("expected en for deepl source, got %q err=%v", code, err)
	}
	if code, err := table.Resolve("en_GB", "deepl", true); err != nil || code != "en-gb" {
		t.Fatalf("expected en-gb as deepl target, got %q err=%v", code, err)
	}
	if _, err := table.Resolve("en-gb", "deepl", false); !errors.Is(err, ErrTranslationOnly) {
		t.Fatalf("expected ErrTranslationOnly, got %v", err)
	}
	if _, err := table.Resolve("en-gb", "bing", false); err != nil {
		t.Fatalf("bing accepts en-gb as source: %v", err)
	}
	if _, err := table.Resolve("ko", "deepl", true); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := table.Resolve("xx", "fake", true); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
}

func TestDefaultTableProviderCode(t *testing.T) {
	t.Parallel()

	table, err := DefaultTable()
	if err != nil {
		t.Fatalf("load default table: %v", err)
	}

	cases := []struct {
		code, provider, want string
	}{
		{"de", "deepl", "DE"},
		{"de", "bing", "de"},
		{"zh", "bing", "zh-Hans"},
		{"pt-br", "deepl", "PT-BR"},
		{"pt-br", "fake", "pt-br"},
	}
	for _, tc := range cases {
		got, err := table.ProviderCode(tc.code, tc.provider)
		if err != nil {
			t.Fatalf("ProviderCode(%q, %q): %v", tc.code, tc.provider, err)
		}
		if got != tc.want {
			t.Fatalf("ProviderCode(%q, %q) = %q, want %q", tc.code, tc.provider, got, tc.want)
		}
	}
}

func TestParseTableFillsDescriptions(t *testing.T) {
	t.Parallel()

	table, err := ParseTable([]byte("languages:\n  - code: de\n    bing: de\n  - code: fr\n    description: Francais\n"))
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}
	entry, ok := table.Lookup("DE")
	if !ok {
		t.Fatalf("expected de entry")
	}
	if entry.Description != "German" {
		t.Fatalf("expected display name German, got %q", entry.Description)
	}
	if got := table.Codes("bing"); !slices.Equal(got, []string{"de"}) {
		t.Fatalf("unexpected bing codes: %v", got)
	}
	if got := table.Codes(""); !slices.Equal(got, []string{"de", "fr"}) {
		t.Fatalf("unexpected codes: %v", got)
	}
}

func TestParseTableRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := ParseTable([]byte("languages:\n  - code: de\n  - code: DE\n"))
	if err == nil {
		t.Fatalf("expected duplicate code error")
	}
}

func TestLoadTableFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "languages.yaml")
	if err := os.WriteFile(path, []byte("languages:\n  - code: it\n    deepl: IT\n"), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	if got := table.Codes("deepl"); !slices.Equal(got, []string{"it"}) {
		t.Fatalf("unexpected deepl codes: %v", got)
	}
}
