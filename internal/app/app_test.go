package app

import (
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"horse.fit/translationtower/internal/cli"
	"horse.fit/translationtower/internal/translation"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// memoryEnv writes an env file for an in-memory runtime. The keys are first
// registered with t.Setenv so the loaded values are restored after the test.
func memoryEnv(t *testing.T, dir string) string {
	t.Helper()

	values := map[string]string{
		"CACHE_DRIVER":       "memory",
		"LOG_LEVEL":          "disabled",
		"QUEUE_IDLE_TIMEOUT": "10ms",
		"DRAIN_TIMEOUT":      "2s",
	}
	var b strings.Builder
	for key, value := range values {
		t.Setenv(key, "")
		b.WriteString(key + "=" + value + "\n")
	}
	t.Setenv(cli.EnvFileVar, "")
	return writeFile(t, dir, "test.env", b.String())
}

func TestRunDispatch(t *testing.T) {
	cases := map[string]struct {
		args []string
		want int
	}{
		"no args":         {args: nil, want: 2},
		"help":            {args: []string{"help"}, want: 0},
		"unknown":         {args: []string{"ingest"}, want: 2},
		"translate bare":  {args: []string{"translate"}, want: 2},
		"bad format":      {args: []string{"languages", "--format", "xml"}, want: 2},
		"bad translator":  {args: []string{"languages", "--translator", "google"}, want: 2},
		"serve bad port":  {args: []string{"serve", "--port", "0"}, want: 2},
		"request missing": {args: []string{"request", filepath.Join(t.TempDir(), "missing.json")}, want: 2},
	}
	for name, tc := range cases {
		if got := Run(tc.args); got != tc.want {
			t.Fatalf("%s: expected exit %d, got %d", name, tc.want, got)
		}
	}
}

func TestParseFileArgAcceptsFlagsAfterFile(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("output", "", "")

	path, code := parseFileArg(fs, []string{"req.json", "--output", "out.json"})
	if code != -1 || path != "req.json" || *output != "out.json" {
		t.Fatalf("unexpected parse result: path=%q code=%d output=%q", path, code, *output)
	}

	fs = flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, code := parseFileArg(fs, []string{"a.json", "b.json"}); code != 2 {
		t.Fatalf("expected exit 2 for two files, got %d", code)
	}
}

func TestReadRequestFileRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"texts":[{"text":"a","translator":"fake","target_lang":"fr","extra":1}]}`)
	if _, err := readRequestFile(path); err == nil {
		t.Fatalf("expected unknown field error")
	}

	empty := writeFile(t, dir, "empty.json", `{"texts":[]}`)
	if _, err := readRequestFile(empty); err == nil {
		t.Fatalf("expected error for empty texts")
	}
}

func TestTranslateCommandWithFakeProvider(t *testing.T) {
	dir := t.TempDir()
	envPath := memoryEnv(t, dir)
	reqPath := writeFile(t, dir, "request.json", `{"texts":[
		{"text":"Hello world","translator":"fake","source_lang":"en","target_lang":"fr"},
		{"text":"See you","translator":"deepl","translator_fake_mode":true,"source_lang":"en","target_lang":"de",
		 "annotations":[{"label":"LOC","start":4,"stop":7}]}
	]}`)
	outPath := filepath.Join(dir, "response.json")

	if code := Run([]string{"translate", reqPath, "--env", envPath, "--output", outPath}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var resp translation.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(resp.Translations) != 2 {
		t.Fatalf("expected 2 translations, got %d", len(resp.Translations))
	}
	if got := resp.Translations[0].Translation; got != "[Fake en->fr] Hello world" {
		t.Fatalf("unexpected first translation %q", got)
	}
	second := resp.Translations[1]
	if !strings.HasPrefix(second.Translation, "[Fake en->de] ") || len(second.TargetAnnotations) != 1 {
		t.Fatalf("unexpected annotated translation: %+v", second)
	}
	if second.TargetAnnotations[0].Label != "LOC" {
		t.Fatalf("expected LOC annotation, got %+v", second.TargetAnnotations)
	}
}

func TestTranslateCommandRejectsInvalidJob(t *testing.T) {
	dir := t.TempDir()
	envPath := memoryEnv(t, dir)
	reqPath := writeFile(t, dir, "request.json", `{"texts":[{"text":"Hello","translator":"fake","source_lang":"en","target_lang":"xx"}]}`)

	if code := Run([]string{"translate", "--env", envPath, reqPath}); code != 2 {
		t.Fatalf("expected exit 2 for unknown target language, got %d", code)
	}
}

func TestRequestCommandWritesServerResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/translate" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success","data":{"translations":[{"text":"Hi","translation":"Salut","source_lang":"en","target_lang":"fr","translator":"deepl","from_cache":true}]}}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	reqPath := writeFile(t, dir, "request.json", `{"texts":[{"text":"Hi","translator":"deepl","source_lang":"en","target_lang":"fr"}]}`)
	outPath := filepath.Join(dir, "out.json")

	if code := Run([]string{"request", reqPath, "--server", srv.URL, "--output", outPath}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(raw), `"translation": "Salut"`) || !strings.Contains(string(raw), `"from_cache": true`) {
		t.Fatalf("unexpected output: %s", raw)
	}
}
