package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"horse.fit/translationtower/internal/translation"
)

func TestTranslateDecodesSuccessEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/translate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id header")
		}
		body, _ := io.ReadAll(r.Body)
		var req translation.Request
		if err := json.Unmarshal(body, &req); err != nil || len(req.Texts) != 1 {
			t.Errorf("unexpected request body %s: %v", body, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","data":{"translations":[{"text":"Hello","translation":"[Fake en->fr] Hello","source_lang":"en","target_lang":"fr","translator":"fake","from_cache":false}]}}`)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/"})
	resp, err := c.Translate(context.Background(), translation.Request{Texts: []translation.Input{
		{Text: "Hello", Translator: "fake", SourceLang: "en", TargetLang: "fr"},
	}})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(resp.Translations) != 1 || resp.Translations[0].Translation != "[Fake en->fr] Hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTranslateReturnsAPIError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
		want   string
		field  string
	}{
		"provider failure": {
			status: http.StatusBadGateway,
			body:   `{"status":"error","message":"deepl: status 456","code":502}`,
			want:   "deepl: status 456",
		},
		"validation": {
			status: http.StatusBadRequest,
			body:   `{"status":"fail","message":"Validation failed","data":{"validation_errors":{"/texts/0/translator":"unknown translator"}}}`,
			want:   "Validation failed",
			field:  "/texts/0/translator",
		},
		"not json": {
			status: http.StatusBadGateway,
			body:   "upstream down",
			want:   "upstream down",
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := New(Options{BaseURL: srv.URL}).Translate(context.Background(), translation.Request{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tc.status || apiErr.Message != tc.want {
				t.Fatalf("unexpected error: %+v", apiErr)
			}
			if tc.field != "" && !strings.Contains(apiErr.Error(), tc.field) {
				t.Fatalf("expected %q in %q", tc.field, apiErr.Error())
			}
		})
	}
}

func TestTranslateHonoursTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if _, err := c.Translate(context.Background(), translation.Request{}); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestLanguagesPassesTranslator(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("translator"); got != "bing" {
			t.Errorf("expected translator=bing, got %q", got)
		}
		_, _ = io.WriteString(w, `{"status":"success","data":{"translator":"bing","languages":[{"code":"ko","description":"Korean","bing":"ko"}]}}`)
	}))
	defer srv.Close()

	entries, err := New(Options{BaseURL: srv.URL}).Languages(context.Background(), "bing")
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	if len(entries) != 1 || entries[0].Bing != "ko" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
