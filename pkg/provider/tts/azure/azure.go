// Package azure provides an Azure Cognitive Services Speech backend for the
// tts.Provider interface.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vocanta/vocanta/pkg/provider/tts"
)

const (
	endpointFmt  = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
	outputFormat = "raw-16khz-16bit-mono-pcm"

	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the Azure Provider.
type Option func(*Provider)

// WithEndpoint overrides the synthesis endpoint URL. Used for sovereign
// clouds and tests.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// Provider implements tts.Provider backed by the Azure Speech REST API.
type Provider struct {
	subscriptionKey string
	endpoint        string
	httpClient      *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates an Azure Provider for region. subscriptionKey must be
// non-empty.
func New(subscriptionKey, region string, opts ...Option) (*Provider, error) {
	if subscriptionKey == "" {
		return nil, errors.New("azure: subscriptionKey must not be empty")
	}
	p := &Provider{
		subscriptionKey: subscriptionKey,
		endpoint:        fmt.Sprintf(endpointFmt, region),
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize posts the SSML document and returns the raw 16 kHz 16-bit mono
// PCM response body.
func (p *Provider) Synthesize(ctx context.Context, ssmlDoc string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(ssmlDoc))
	if err != nil {
		return nil, fmt.Errorf("azure: build request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", outputFormat)
	req.Header.Set("User-Agent", "vocanta")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("azure: synthesize: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure: read audio: %w", err)
	}
	return pcm, nil
}
