package language

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultTableYAML []byte

var (
	ErrUnknownLanguage = errors.New("unknown language code")
	ErrUnsupported     = errors.New("language not supported by translator")
	ErrTranslationOnly = errors.New("language is only available as a translation target")
)

// Entry is one row of the supported-language table.
type Entry struct {
	Code                 string `yaml:"code" json:"code"`
	Description          string `yaml:"description" json:"description"`
	Bing                 string `yaml:"bing,omitempty" json:"bing,omitempty"`
	DeepL                string `yaml:"deepl,omitempty" json:"deepl,omitempty"`
	DeepLOnlyTranslation bool   `yaml:"deepl_only_translation,omitempty" json:"deepl_only_translation,omitempty"`
}

// ProviderCode returns the code a provider expects, or "" when unsupported.
// The fake translator accepts every known language under its canonical code.
func (e Entry) ProviderCode(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "bing":
		return e.Bing
	case "deepl":
		return e.DeepL
	case "fake":
		return e.Code
	default:
		return ""
	}
}

type tableFile struct {
	Languages []Entry `yaml:"languages"`
}

// Table maps canonical language codes to provider-specific codes.
type Table struct {
	entries map[string]Entry
	codes   []string
}

// DefaultTable returns the embedded language table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTableYAML)
}

// LoadTable reads a YAML table from disk. An empty path yields the default table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language table: %w", err)
	}
	return ParseTable(raw)
}

func ParseTable(raw []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode language table: %w", err)
	}
	if len(file.Languages) == 0 {
		return nil, fmt.Errorf("language table is empty")
	}

	table := &Table{entries: make(map[string]Entry, len(file.Languages))}
	for i, entry := range file.Languages {
		code := NormalizeTag(entry.Code)
		if code == "" {
			return nil, fmt.Errorf("language table row %d: invalid code %q", i+1, entry.Code)
		}
		if _, exists := table.entries[code]; exists {
			return nil, fmt.Errorf("language table row %d: duplicate code %q", i+1, code)
		}
		entry.Code = code
		entry.Bing = strings.TrimSpace(entry.Bing)
		entry.DeepL = strings.TrimSpace(entry.DeepL)
		if strings.TrimSpace(entry.Description) == "" {
			entry.Description = englishName(code)
		}
		table.entries[code] = entry
		table.codes = append(table.codes, code)
	}
	sort.Strings(table.codes)
	return table, nil
}

// Lookup returns the entry for a code after normalization.
func (t *Table) Lookup(code string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	entry, ok := t.entries[NormalizeTag(code)]
	return entry, ok
}

// Resolve validates a language for a provider and returns its canonical code.
// Source languages (forTranslation false) that DeepL only offers as targets are
// rejected.
func (t *Table) Resolve(code, provider string, forTranslation bool) (string, error) {
	entry, ok := t.Lookup(code)
	if !ok {
		return "", fmt.Errorf("%w %q (allowed for %s: %s)", ErrUnknownLanguage, code, provider, strings.Join(t.Codes(provider), ", "))
	}
	if entry.ProviderCode(provider) == "" {
		return "", fmt.Errorf("%w: %q for %s (allowed: %s)", ErrUnsupported, entry.Code, provider, strings.Join(t.Codes(provider), ", "))
	}
	if !forTranslation && strings.EqualFold(provider, "deepl") && entry.DeepLOnlyTranslation {
		return "", fmt.Errorf("%w: %q for %s", ErrTranslationOnly, entry.Code, provider)
	}
	return entry.Code, nil
}

// ProviderCode maps a canonical code to the provider's own code.
func (t *Table) ProviderCode(code, provider string) (string, error) {
	entry, ok := t.Lookup(code)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownLanguage, code)
	}
	mapped := entry.ProviderCode(provider)
	if mapped == "" {
		return "", fmt.Errorf("%w: %q for %s", ErrUnsupported, entry.Code, provider)
	}
	return mapped, nil
}

// Codes lists canonical codes supported by a provider; an empty provider lists all.
func (t *Table) Codes(provider string) []string {
	if t == nil {
		return nil
	}
	codes := make([]string, 0, len(t.codes))
	for _, code := range t.codes {
		if provider == "" || t.entries[code].ProviderCode(provider) != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Entries lists table rows supported by a provider, sorted by code.
func (t *Table) Entries(provider string) []Entry {
	codes := t.Codes(provider)
	entries := make([]Entry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, t.entries[code])
	}
	return entries
}

func englishName(code string) string {
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return strings.ToUpper(code)
}
