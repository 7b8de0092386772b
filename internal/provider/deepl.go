package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"horse.fit/translationtower/internal/model"
)

const DefaultDeepLEndpoint = "https://api.deepl.com/v2/translate"

type DeepLOptions struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
	Retrier  *Retrier
}

// DeepL calls the DeepL v2 form API.
type DeepL struct {
	apiKey   string
	endpoint string
	caller   httpCaller
}

func NewDeepL(opts DeepLOptions) *DeepL {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultDeepLEndpoint
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &DeepL{
		apiKey:   opts.APIKey,
		endpoint: endpoint,
		caller:   httpCaller{client: client, retrier: opts.Retrier},
	}
}

func (d *DeepL) Name() string {
	return model.ProviderDeepL
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

func (d *DeepL) Translate(ctx context.Context, req Request) ([]string, error) {
	if len(req.Texts) == 0 {
		return []string{}, nil
	}

	form := url.Values{}
	form.Set("auth_key", d.apiKey)
	form.Set("source_lang", req.SourceLang)
	form.Set("target_lang", req.TargetLang)
	form.Set("split_sentences", "0")
	if req.HTMLMode {
		form.Set("tag_handling", "xml")
	}
	for _, text := range req.Texts {
		form.Add("text", text)
	}
	encoded := form.Encode()

	raw, err := d.caller.call(ctx, d.Name(), req.BatchID, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed deeplResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProviderError{Provider: d.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := checkLength(d.Name(), len(req.Texts), len(parsed.Translations)); err != nil {
		return nil, err
	}

	translations := make([]string, len(parsed.Translations))
	for i, item := range parsed.Translations {
		translations[i] = item.Text
	}
	return translations, nil
}
