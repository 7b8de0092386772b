package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/translationtower/internal/model"
)

func fastRetrier() *Retrier {
	return NewRetrier([]time.Duration{time.Millisecond, time.Millisecond}, zerolog.Nop())
}

func TestBingRequestFormat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/translate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api-version") != "3.0" || q.Get("from") != "en" || q.Get("to") != "zh-Hans" || q.Get("textType") != "html" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "secret" || r.Header.Get("Ocp-Apim-Subscription-Region") != "westeurope" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.Header.Get("X-ClientTraceId") == "" {
			t.Errorf("missing trace id")
		}

		var body []map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body) != 2 || body[0]["text"] != "<p>one</p>" || body[1]["text"] != "<p>two</p>" {
			t.Errorf("unexpected body: %v", body)
		}
		_, _ = io.WriteString(w, `[{"translations":[{"text":"<p>yi</p>","to":"zh-Hans"}]},{"translations":[{"text":"<p>er</p>","to":"zh-Hans"}]}]`)
	}))
	defer server.Close()

	bing := NewBing(BingOptions{APIKey: "secret", Region: "westeurope", Endpoint: server.URL, Client: server.Client()})
	got, err := bing.Translate(context.Background(), Request{
		Texts:      []string{"<p>one</p>", "<p>two</p>"},
		SourceLang: "en",
		TargetLang: "zh-Hans",
		HTMLMode:   true,
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !slices.Equal(got, []string{"<p>yi</p>", "<p>er</p>"}) {
		t.Fatalf("unexpected translations: %v", got)
	}
}

func TestDeepLRequestFormat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("auth_key") != "k" || r.PostForm.Get("source_lang") != "EN" || r.PostForm.Get("target_lang") != "DE" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		if r.PostForm.Get("split_sentences") != "0" {
			t.Errorf("expected split_sentences=0")
		}
		if _, ok := r.PostForm["tag_handling"]; ok {
			t.Errorf("unexpected tag_handling for plain text")
		}
		if texts := r.PostForm["text"]; !slices.Equal(texts, []string{"a", "b", "c"}) {
			t.Errorf("unexpected texts: %v", texts)
		}
		_, _ = io.WriteString(w, `{"translations":[{"text":"A"},{"text":"B"},{"text":"C"}]}`)
	}))
	defer server.Close()

	deepl := NewDeepL(DeepLOptions{APIKey: "k", Endpoint: server.URL, Client: server.Client()})
	got, err := deepl.Translate(context.Background(), Request{Texts: []string{"a", "b", "c"}, SourceLang: "EN", TargetLang: "DE"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !slices.Equal(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected translations: %v", got)
	}
}

func TestDeepLLengthMismatchIsProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"translations":[{"text":"A"}]}`)
	}))
	defer server.Close()

	deepl := NewDeepL(DeepLOptions{Endpoint: server.URL, Client: server.Client()})
	_, err := deepl.Translate(context.Background(), Request{Texts: []string{"a", "b"}})
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestRetryOnRateLimitIsTransparent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"message":"slow down"}`)
			return
		}
		_, _ = io.WriteString(w, `{"translations":[{"text":"ok"}]}`)
	}))
	defer server.Close()

	deepl := NewDeepL(DeepLOptions{Endpoint: server.URL, Client: server.Client(), Retrier: fastRetrier()})
	got, err := deepl.Translate(context.Background(), Request{Texts: []string{"x"}})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got[0] != "ok" || calls.Load() != 2 {
		t.Fatalf("unexpected result %v after %d calls", got, calls.Load())
	}
}

func TestRetryExhaustedYieldsProviderError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	bing := NewBing(BingOptions{Endpoint: server.URL, Client: server.Client(), Retrier: fastRetrier()})
	_, err := bing.Translate(context.Background(), Request{Texts: []string{"x"}, SourceLang: "en", TargetLang: "fr"})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusInternalServerError || perr.Provider != model.ProviderBing {
		t.Fatalf("unexpected provider error: %+v", perr)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	deepl := NewDeepL(DeepLOptions{Endpoint: server.URL, Client: server.Client(), Retrier: fastRetrier()})
	if _, err := deepl.Translate(context.Background(), Request{Texts: []string{"x"}}); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	retrier := NewRetrier([]time.Duration{time.Hour}, zerolog.Nop())
	err := retrier.Do(ctx, "test", 1, func(context.Context) error {
		cancel()
		return &ProviderError{Provider: "test", StatusCode: 429, retryable: true}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFakePrefixesTexts(t *testing.T) {
	t.Parallel()

	fake := NewFake(FakeOptions{})
	got, err := fake.Translate(context.Background(), Request{Texts: []string{"hello", ""}, SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !slices.Equal(got, []string{"[Fake en->fr] hello", "[Fake en->fr] "}) {
		t.Fatalf("unexpected translations: %q", got)
	}
}

func TestFakeSimulatedFailures(t *testing.T) {
	t.Parallel()

	failing := NewFake(FakeOptions{FailureRate: 0.5, Rand: func() float64 { return 0.1 }})
	if _, err := failing.Translate(context.Background(), Request{Texts: []string{"x"}}); err == nil {
		t.Fatalf("expected permanent failure")
	}

	rolls := []float64{0.1, 0.1, 0.9}
	var n int
	flaky := NewFake(FakeOptions{
		TransientFailureRate: 0.5,
		Rand: func() float64 {
			v := rolls[n]
			n++
			return v
		},
		Retrier: fastRetrier(),
	})
	got, err := flaky.Translate(context.Background(), Request{Texts: []string{"x"}, SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("expected transient failures to be retried, got %v", err)
	}
	if got[0] != "[Fake en->de] x" || n != 3 {
		t.Fatalf("unexpected result %q after %d rolls", got, n)
	}
}

type recordingProvider struct {
	name  string
	calls atomic.Int32
	last  Request
	err   error
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Translate(_ context.Context, req Request) ([]string, error) {
	p.calls.Add(1)
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return slices.Clone(req.Texts), nil
}

type mapLanguages map[string]string

func (m mapLanguages) ProviderCode(code, provider string) (string, error) {
	mapped, ok := m[provider+"/"+code]
	if !ok {
		return "", errors.New("unsupported")
	}
	return mapped, nil
}

func newTestGateway(t *testing.T, providers ...Provider) *Gateway {
	t.Helper()

	registry := NewRegistry()
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	gateway, err := NewGateway(GatewayOptions{
		Registry:        registry,
		Languages:       mapLanguages{"deepl/en": "EN", "deepl/fr": "FR"},
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
		Logger:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gateway
}

func TestGatewayMapsLanguagesOnce(t *testing.T) {
	t.Parallel()

	deepl := &recordingProvider{name: model.ProviderDeepL}
	gateway := newTestGateway(t, deepl, NewFake(FakeOptions{}))

	tr := model.Translator{Name: model.ProviderDeepL, HTMLMode: true}
	got, err := gateway.Translate(context.Background(), tr, []string{"a"}, "en", "fr", 7)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got[0] != "a" {
		t.Fatalf("unexpected translations: %v", got)
	}
	if deepl.last.SourceLang != "EN" || deepl.last.TargetLang != "FR" || !deepl.last.HTMLMode || deepl.last.BatchID != 7 {
		t.Fatalf("unexpected provider request: %+v", deepl.last)
	}
}

func TestGatewayFakeModeUsesCanonicalCodes(t *testing.T) {
	t.Parallel()

	deepl := &recordingProvider{name: model.ProviderDeepL}
	gateway := newTestGateway(t, deepl, NewFake(FakeOptions{}))

	tr := model.Translator{Name: model.ProviderDeepL, FakeMode: true}
	got, err := gateway.Translate(context.Background(), tr, []string{"a"}, "en", "pt-br", 1)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got[0] != "[Fake en->pt-br] a" {
		t.Fatalf("unexpected translation: %q", got[0])
	}
	if deepl.calls.Load() != 0 {
		t.Fatalf("fake mode must not reach the real provider")
	}
}

func TestGatewayUnsupportedLanguageIsProviderError(t *testing.T) {
	t.Parallel()

	gateway := newTestGateway(t, &recordingProvider{name: model.ProviderDeepL})
	_, err := gateway.Translate(context.Background(), model.Translator{Name: model.ProviderDeepL}, []string{"a"}, "en", "ko", 1)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != model.ProviderDeepL {
		t.Fatalf("expected deepl ProviderError, got %v", err)
	}
}

func TestGatewayBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	deepl := &recordingProvider{name: model.ProviderDeepL, err: &ProviderError{Provider: model.ProviderDeepL, StatusCode: 500, Err: errors.New("boom")}}
	gateway := newTestGateway(t, deepl)
	tr := model.Translator{Name: model.ProviderDeepL}

	for i := 0; i < 2; i++ {
		if _, err := gateway.Translate(context.Background(), tr, []string{"a"}, "en", "fr", int64(i)); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}

	_, err := gateway.Translate(context.Background(), tr, []string{"a"}, "en", "fr", 3)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected open-circuit ProviderError, got %v", err)
	}
	if deepl.calls.Load() != 2 {
		t.Fatalf("expected open breaker to skip the provider, got %d calls", deepl.calls.Load())
	}
	if state := gateway.BreakerState("DeepL"); state != "open" {
		t.Fatalf("expected open breaker, got %q", state)
	}
}

func TestRegistryResolvesNormalizedNames(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if _, err := registry.Provider("bing"); err == nil {
		t.Fatalf("expected error on empty registry")
	}
	_ = registry.Register(NewFake(FakeOptions{}))
	if _, err := registry.Provider(" FAKE "); err != nil {
		t.Fatalf("resolve fake: %v", err)
	}
	if _, err := registry.Provider("bing"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if names := registry.ProviderNames(); !slices.Equal(names, []string{"fake"}) {
		t.Fatalf("unexpected names: %v", names)
	}
}
