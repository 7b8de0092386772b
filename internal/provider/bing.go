package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"horse.fit/translationtower/internal/model"
)

const DefaultBingEndpoint = "https://api.cognitive.microsofttranslator.com"

type BingOptions struct {
	APIKey   string
	Region   string
	Endpoint string
	Client   *http.Client
	Retrier  *Retrier
}

// Bing calls the Microsoft Translator v3 API.
type Bing struct {
	apiKey   string
	region   string
	endpoint string
	caller   httpCaller
}

func NewBing(opts BingOptions) *Bing {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultBingEndpoint
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &Bing{
		apiKey:   opts.APIKey,
		region:   opts.Region,
		endpoint: endpoint,
		caller:   httpCaller{client: client, retrier: opts.Retrier},
	}
}

func (b *Bing) Name() string {
	return model.ProviderBing
}

type bingText struct {
	Text string `json:"text"`
}

type bingResult struct {
	Translations []bingText `json:"translations"`
}

func (b *Bing) Translate(ctx context.Context, req Request) ([]string, error) {
	if len(req.Texts) == 0 {
		return []string{}, nil
	}

	query := url.Values{}
	query.Set("api-version", "3.0")
	query.Set("from", req.SourceLang)
	query.Set("to", req.TargetLang)
	if req.HTMLMode {
		query.Set("textType", "html")
	}
	endpoint := b.endpoint + "/translate?" + query.Encode()

	payload := make([]bingText, len(req.Texts))
	for i, text := range req.Texts {
		payload[i] = bingText{Text: text}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	raw, err := b.caller.call(ctx, b.Name(), req.BatchID, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
		httpReq.Header.Set("Ocp-Apim-Subscription-Key", b.apiKey)
		if b.region != "" {
			httpReq.Header.Set("Ocp-Apim-Subscription-Region", b.region)
		}
		httpReq.Header.Set("X-ClientTraceId", uuid.NewString())
		return httpReq, nil
	})
	if err != nil {
		return nil, err
	}

	var results []bingResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := checkLength(b.Name(), len(req.Texts), len(results)); err != nil {
		return nil, err
	}

	translations := make([]string, len(results))
	for i, result := range results {
		if len(result.Translations) == 0 {
			return nil, &ProviderError{Provider: b.Name(), Err: fmt.Errorf("result %d has no translations", i)}
		}
		translations[i] = result.Translations[0].Text
	}
	return translations, nil
}
