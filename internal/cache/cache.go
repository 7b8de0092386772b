package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"horse.fit/translationtower/internal/model"
)

// Store is the byte-level backing store behind Cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// CachedTranslation is one stored provider result.
type CachedTranslation struct {
	Text               string `json:"text"`
	Translation        string `json:"translation"`
	SourceLanguage     string `json:"source_language"`
	TargetLanguage     string `json:"target_language"`
	TranslatorName     string `json:"translator_name"`
	TranslatorHTMLMode bool   `json:"translator_html_mode"`
	TranslatorFakeMode bool   `json:"translator_fake_mode"`
}

// Key hashes text, languages and the translator descriptor with BLAKE2b-512.
func Key(text, source, target string, tr model.Translator) string {
	h, _ := blake2b.New512(nil)
	h.Write([]byte(text))
	h.Write([]byte(source))
	h.Write([]byte(target))
	h.Write([]byte(tr.String()))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache wraps a Store. It never returns store failures; they are logged and
// treated as misses.
type Cache struct {
	store  Store
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

func (c *Cache) Get(ctx context.Context, key string) (*CachedTranslation, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var record CachedTranslation
	if err := json.Unmarshal(raw, &record); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry is corrupt")
		return nil, false
	}
	return &record, true
}

func (c *Cache) Set(ctx context.Context, key string, record CachedTranslation) {
	if c == nil || c.store == nil {
		return
	}

	raw, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("encode cache entry")
		return
	}
	if err := c.store.Put(ctx, key, raw); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Lookup computes the key and reads it.
func (c *Cache) Lookup(ctx context.Context, text, source, target string, tr model.Translator) (*CachedTranslation, bool) {
	return c.Get(ctx, Key(text, source, target, tr))
}

// Put stores a provider result under its computed key.
func (c *Cache) Put(ctx context.Context, text, translation, source, target string, tr model.Translator) {
	c.Set(ctx, Key(text, source, target, tr), CachedTranslation{
		Text:               text,
		Translation:        translation,
		SourceLanguage:     source,
		TargetLanguage:     target,
		TranslatorName:     tr.Name,
		TranslatorHTMLMode: tr.HTMLMode,
		TranslatorFakeMode: tr.FakeMode,
	})
}
