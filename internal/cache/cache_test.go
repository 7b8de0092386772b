package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/translationtower/internal/model"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}

type corruptStore struct{}

func (corruptStore) Get(context.Context, string) ([]byte, bool, error) {
	return []byte("{not json"), true, nil
}

func (corruptStore) Put(context.Context, string, []byte) error { return nil }

func TestKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	tr := model.Translator{Name: model.ProviderDeepL}
	a := Key("hello", "en", "fr", tr)
	b := Key("hello", "en", "fr", tr)
	if a != b {
		t.Fatalf("expected identical keys, got %s and %s", a, b)
	}
	if len(a) != 128 {
		t.Fatalf("expected 128 hex chars, got %d", len(a))
	}
}

func TestKeyChangesWithDescriptor(t *testing.T) {
	t.Parallel()

	base := model.Translator{Name: model.ProviderDeepL}
	baseKey := Key("hello", "en", "fr", base)

	variants := map[string]model.Translator{
		"html": {Name: model.ProviderDeepL, HTMLMode: true},
		"fake": {Name: model.ProviderDeepL, FakeMode: true},
		"name": {Name: model.ProviderBing},
	}
	for name, tr := range variants {
		if Key("hello", "en", "fr", tr) == baseKey {
			t.Fatalf("expected %s variant to change the key", name)
		}
	}
	if Key("hello", "en", "de", base) == baseKey {
		t.Fatalf("expected target language to change the key")
	}
	if Key("hello!", "en", "fr", base) == baseKey {
		t.Fatalf("expected text to change the key")
	}
}

func TestCacheSetThenGet(t *testing.T) {
	t.Parallel()

	c := New(NewMemoryStore(1<<20), zerolog.Nop())
	ctx := context.Background()
	tr := model.Translator{Name: model.ProviderFake, HTMLMode: true}

	if _, ok := c.Lookup(ctx, "hello", "en", "fr", tr); ok {
		t.Fatalf("expected miss before put")
	}
	c.Put(ctx, "hello", "bonjour", "en", "fr", tr)

	got, ok := c.Lookup(ctx, "hello", "en", "fr", tr)
	if !ok {
		t.Fatalf("expected hit after put")
	}
	want := CachedTranslation{
		Text:               "hello",
		Translation:        "bonjour",
		SourceLanguage:     "en",
		TargetLanguage:     "fr",
		TranslatorName:     model.ProviderFake,
		TranslatorHTMLMode: true,
	}
	if *got != want {
		t.Fatalf("unexpected record: %+v", *got)
	}

	if _, ok := c.Lookup(ctx, "hello", "en", "fr", model.Translator{Name: model.ProviderFake}); ok {
		t.Fatalf("expected miss for a different descriptor")
	}
}

func TestCacheDegradesToMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for name, store := range map[string]Store{"failing": failingStore{}, "corrupt": corruptStore{}} {
		c := New(store, zerolog.Nop())
		c.Set(ctx, "k", CachedTranslation{Text: "a"})
		if got, ok := c.Get(ctx, "k"); ok || got != nil {
			t.Fatalf("%s store: expected miss, got %+v", name, got)
		}
	}

	var nilCache *Cache
	if _, ok := nilCache.Get(ctx, "k"); ok {
		t.Fatalf("expected nil cache to miss")
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(20)
	_ = store.Put(ctx, "a", []byte("0123456789"))
	_ = store.Put(ctx, "b", []byte("0123456789"))
	if _, ok, _ := store.Get(ctx, "a"); !ok {
		t.Fatalf("expected a present")
	}
	_ = store.Put(ctx, "c", []byte("0123456789"))

	if _, ok, _ := store.Get(ctx, "b"); ok {
		t.Fatalf("expected b evicted")
	}
	if store.Len() != 2 {
		t.Fatalf("expected two entries, got %d", store.Len())
	}

	_ = store.Put(ctx, "a", []byte("01234"))
	if got, _, _ := store.Get(ctx, "a"); string(got) != "01234" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}
