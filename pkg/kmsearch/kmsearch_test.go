package kmsearch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vocanta/vocanta/pkg/kmsearch"
	"github.com/vocanta/vocanta/pkg/kmsearch/mock"
)

func TestClientRequestShape(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		io.WriteString(w, `{"total":1,"source":"km","answers":[],"data":[
			{"score":0.8,"rerankerScore":2.5,"documentId":"internal-1",
			 "document":{"id":"internal-1","publicId":"doc-422","title":"Doc",
			  "content":"Opening hours are 9-17.","metadata":"{\"name\":\"Store\"}"}}]}`)
	}))
	defer srv.Close()

	c := kmsearch.NewClient(srv.URL)
	hits, err := c.Search(context.Background(), kmsearch.Query{
		Content:      "opening hours",
		KnowledgeID:  42,
		Language:     "en-US",
		AssistantKey: "secret",
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["content"] != "opening hours" || gotBody["knowledgeId"] != float64(42) {
		t.Errorf("request body = %v", gotBody)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	hit := hits[0]
	if hit.DocumentID != "internal-1" || hit.RerankerScore != 2.5 || hit.Score != 0.8 {
		t.Errorf("hit = %+v", hit)
	}
	doc := hit.Document
	if doc.PublicID != "doc-422" || doc.Title != "Doc" || doc.Content != "Opening hours are 9-17." {
		t.Errorf("nested document lost fields: %+v", doc)
	}
	if doc.Metadata != `{"name":"Store"}` {
		t.Errorf("metadata string = %q", doc.Metadata)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := kmsearch.NewClient(srv.URL).Search(context.Background(), kmsearch.Query{Content: "q"}); err == nil {
		t.Fatal("expected error for 403")
	}
}

func hit(id string, score float64) kmsearch.Item {
	return kmsearch.Item{DocumentID: id, RerankerScore: score}
}

func TestItemKeyFallsBackToDocumentID(t *testing.T) {
	it := kmsearch.Item{Document: kmsearch.Document{ID: "nested"}}
	if it.Key() != "nested" {
		t.Errorf("key = %q", it.Key())
	}
	it.DocumentID = "outer"
	if it.Key() != "outer" {
		t.Errorf("key = %q", it.Key())
	}
}

func TestFanOutMergesAndRanks(t *testing.T) {
	s := mock.New()
	s.Respond("question", hit("a", 1.0), hit("b", 3.0))
	s.Respond("keyword", hit("a", 2.0), hit("c", 0.5)) // higher score wins

	docs, err := kmsearch.FanOut(context.Background(), s, kmsearch.Query{KnowledgeID: 1},
		[]string{"question", "keyword"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 {
		t.Fatalf("docs = %+v", docs)
	}
	wantOrder := []string{"b", "a", "c"}
	for i, want := range wantOrder {
		if docs[i].DocumentID != want {
			t.Errorf("docs[%d] = %q, want %q", i, docs[i].DocumentID, want)
		}
	}
	if docs[1].RerankerScore != 2.0 {
		t.Errorf("duplicate kept score %v, want the higher one", docs[1].RerankerScore)
	}
}

func TestFanOutTruncatesAndDedupesQueries(t *testing.T) {
	s := mock.New()
	s.Respond("q", hit("a", 3), hit("b", 2), hit("c", 1))

	docs, err := kmsearch.FanOut(context.Background(), s, kmsearch.Query{},
		[]string{"q", "q", ""}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].DocumentID != "a" {
		t.Errorf("docs = %+v", docs)
	}
	if got := len(s.Queries()); got != 1 {
		t.Errorf("search calls = %d, duplicate/empty queries must collapse", got)
	}
}

func TestFanOutToleratesPartialFailure(t *testing.T) {
	s := mock.New()
	s.Respond("ok", hit("a", 1))
	s.Fail("bad", errors.New("timeout"))

	docs, err := kmsearch.FanOut(context.Background(), s, kmsearch.Query{},
		[]string{"ok", "bad"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Errorf("docs = %+v", docs)
	}
}

func TestFanOutAllFailed(t *testing.T) {
	s := mock.New()
	s.Fail("bad", errors.New("timeout"))

	if _, err := kmsearch.FanOut(context.Background(), s, kmsearch.Query{},
		[]string{"bad"}, 0); err == nil {
		t.Fatal("expected error when every query fails")
	}
}

func TestJoinByPublicID(t *testing.T) {
	items := []kmsearch.Item{
		{DocumentID: "internal-1", Document: kmsearch.Document{ID: "internal-1", PublicID: "doc-1", Title: "A"}},
		{DocumentID: "internal-2", Document: kmsearch.Document{ID: "internal-2", PublicID: "doc-2", Title: "B"}},
	}
	got := kmsearch.Join([]string{"doc-2", "missing", "doc-1"}, items)
	if len(got) != 2 {
		t.Fatalf("items = %+v", got)
	}
	if got[0].DocID != "doc-2" || got[1].DocID != "doc-1" {
		t.Errorf("order = %+v, want the id order", got)
	}
	// Internal document ids never resolve; only public ids do.
	if leak := kmsearch.Join([]string{"internal-1"}, items); len(leak) != 0 {
		t.Errorf("internal id resolved: %+v", leak)
	}
}

func TestJoinExtractsDocumentMetadata(t *testing.T) {
	meta := map[string]any{
		"name": "Coffee Corner",
		"images": []map[string]any{
			{"title": "Front", "url": "https://cdn/front.png", "action": map[string]any{"type": "open"}},
			{"url": "https://cdn/side.png"},
			{"title": "broken"},
		},
		"imageUrl": "https://cdn/hero.png",
		"navigation": map[string]any{
			"mapImageUrl": "https://cdn/map.png",
			"pin":         map[string]any{"location": map[string]any{"x": 3, "y": 4}, "iconUrl": "https://cdn/pin.png", "rotation": 90},
			"qrCodeUrl":   "https://cdn/qr.png",
			"clientGeoId": "geo-7",
		},
	}
	raw, _ := json.Marshal(meta)
	items := []kmsearch.Item{{Document: kmsearch.Document{
		ID:       "internal-1",
		PublicID: "doc-1",
		Title:    "Fallback Title",
		Metadata: string(raw),
	}}}

	got := kmsearch.Join([]string{"doc-1"}, items)
	if len(got) != 1 {
		t.Fatalf("items = %+v", got)
	}
	item := got[0]
	if item.DocID != "doc-1" || item.Title != "Coffee Corner" {
		t.Errorf("item = %+v", item)
	}
	if item.ThumbnailURL != "https://cdn/front.png" {
		t.Errorf("thumbnail = %q, want the first gallery image", item.ThumbnailURL)
	}
	// Two gallery images with urls plus the standalone hero image.
	if len(item.Images) != 3 {
		t.Fatalf("images = %+v", item.Images)
	}
	if item.Images[0].Title != "Front" || item.Images[0].ImageURL != "https://cdn/front.png" {
		t.Errorf("images[0] = %+v", item.Images[0])
	}
	if item.Images[0].Action == nil {
		t.Error("images[0] action dropped")
	}
	// Untitled gallery image inherits the store name.
	if item.Images[1].Title != "Coffee Corner" || item.Images[1].ImageURL != "https://cdn/side.png" {
		t.Errorf("images[1] = %+v", item.Images[1])
	}
	if item.Images[2].ImageURL != "https://cdn/hero.png" {
		t.Errorf("images[2] = %+v, want the standalone hero image", item.Images[2])
	}
	nav := item.Navigation
	if nav.MapImageURL != "https://cdn/map.png" || nav.QRCodeURL != "https://cdn/qr.png" || nav.ClientGeoID != "geo-7" {
		t.Errorf("navigation = %+v", nav)
	}
	if nav.Pin.Location.X != 3 || nav.Pin.Location.Y != 4 || nav.Pin.Rotation != 90 {
		t.Errorf("pin = %+v", nav.Pin)
	}
}

func TestJoinStandaloneImageURLOnly(t *testing.T) {
	items := []kmsearch.Item{{Document: kmsearch.Document{
		PublicID: "doc-1",
		Title:    "Kiosk",
		Metadata: `{"imageUrl":"https://cdn/kiosk.png"}`,
	}}}

	got := kmsearch.Join([]string{"doc-1"}, items)
	if len(got) != 1 {
		t.Fatalf("items = %+v", got)
	}
	if got[0].ThumbnailURL != "https://cdn/kiosk.png" {
		t.Errorf("thumbnail = %q", got[0].ThumbnailURL)
	}
	if len(got[0].Images) != 1 || got[0].Images[0].Title != "Kiosk" {
		t.Errorf("images = %+v", got[0].Images)
	}
}

func TestJoinBadMetadataDegradesToTitle(t *testing.T) {
	items := []kmsearch.Item{{Document: kmsearch.Document{
		PublicID: "doc-1",
		Title:    "Plain",
		Metadata: "{not json",
	}}}

	got := kmsearch.Join([]string{"doc-1"}, items)
	if len(got) != 1 {
		t.Fatalf("items = %+v", got)
	}
	item := got[0]
	if item.Title != "Plain" || item.ThumbnailURL != "" || len(item.Images) != 0 {
		t.Errorf("item = %+v, want title-only fallback", item)
	}
	var zero kmsearch.Navigation
	if item.Navigation != zero {
		t.Errorf("navigation = %+v, want defaults", item.Navigation)
	}
}

func TestJoinTitleFallsBackToPublicID(t *testing.T) {
	items := []kmsearch.Item{{Document: kmsearch.Document{PublicID: "doc-9"}}}
	got := kmsearch.Join([]string{"doc-9"}, items)
	if len(got) != 1 || got[0].Title != "doc-9" {
		t.Errorf("items = %+v", got)
	}
}
