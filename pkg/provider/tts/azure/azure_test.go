package azure_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vocanta/vocanta/pkg/provider/tts/azure"
)

func TestSynthesizeRequestShape(t *testing.T) {
	var gotHeaders http.Header
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte{0x01, 0x02})
	}))
	defer srv.Close()

	p, err := azure.New("secret-key", "southeastasia", azure.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	pcm, err := p.Synthesize(context.Background(), "<speak>hi</speak>")
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 2 {
		t.Errorf("pcm = %v", pcm)
	}
	if gotHeaders.Get("Ocp-Apim-Subscription-Key") != "secret-key" {
		t.Error("subscription key header missing")
	}
	if gotHeaders.Get("Content-Type") != "application/ssml+xml" {
		t.Errorf("content type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("X-Microsoft-OutputFormat") != "raw-16khz-16bit-mono-pcm" {
		t.Errorf("output format = %q", gotHeaders.Get("X-Microsoft-OutputFormat"))
	}
	if gotBody != "<speak>hi</speak>" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestSynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid ssml", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := azure.New("key", "r", azure.WithEndpoint(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Synthesize(context.Background(), "<speak/>")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "invalid ssml") {
		t.Errorf("err = %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := azure.New("", "region"); err == nil {
		t.Fatal("expected error for empty subscription key")
	}
}
