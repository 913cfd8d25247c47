package kmsearch

import (
	"encoding/json"
	"log/slog"
)

// MetadataItem is one entry of the metadata event: the renderable view of a
// document the generator referenced, derived from the document's metadata
// JSON.
type MetadataItem struct {
	DocID        string     `json:"docId"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	Images       []Image    `json:"images"`
	Navigation   Navigation `json:"navigation"`
}

// Image is one gallery entry of a metadata item.
type Image struct {
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`

	// Action is a client-defined tap payload, forwarded untouched.
	Action json.RawMessage `json:"action,omitempty"`
}

// Navigation carries the wayfinding details of a metadata item. Absent
// fields stay at their zero values so clients always see the full shape.
type Navigation struct {
	MapImageURL string `json:"mapImageUrl"`
	Pin         Pin    `json:"pin"`
	QRCodeURL   string `json:"qrCodeUrl"`
	ClientGeoID string `json:"clientGeoId"`
}

// Pin locates a point of interest on the venue map.
type Pin struct {
	Location Location `json:"location"`
	IconURL  string   `json:"iconUrl"`
	Rotation float64  `json:"rotation"`
}

// Location is a map coordinate.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// docMetadata is the decoded form of [Document.Metadata].
type docMetadata struct {
	Name       string      `json:"name"`
	ImageURL   string      `json:"imageUrl"`
	Images     []metaImage `json:"images"`
	Navigation *Navigation `json:"navigation"`
}

type metaImage struct {
	Title  string          `json:"title"`
	URL    string          `json:"url"`
	Action json.RawMessage `json:"action,omitempty"`
}

// Join resolves public document ids referenced by the generator against the
// search results of this session. Unknown ids are dropped, never fabricated;
// output order follows ids.
func Join(ids []string, items []Item) []MetadataItem {
	byPublicID := make(map[string]Item, len(items))
	for _, it := range items {
		if it.Document.PublicID != "" {
			byPublicID[it.Document.PublicID] = it
		}
	}
	out := make([]MetadataItem, 0, len(ids))
	for _, id := range ids {
		it, ok := byPublicID[id]
		if !ok {
			continue
		}
		out = append(out, metadataItem(it.Document))
	}
	return out
}

// metadataItem builds the renderable entry for doc. An unparseable metadata
// string degrades to a title-only item.
func metadataItem(doc Document) MetadataItem {
	var meta docMetadata
	if doc.Metadata != "" {
		if err := json.Unmarshal([]byte(doc.Metadata), &meta); err != nil {
			slog.Warn("kmsearch: bad document metadata", "publicId", doc.PublicID, "error", err)
			meta = docMetadata{}
		}
	}

	title := meta.Name
	if title == "" {
		title = doc.Title
	}
	if title == "" {
		title = doc.PublicID
	}

	item := MetadataItem{
		DocID:  doc.PublicID,
		Title:  title,
		Images: []Image{},
	}

	// The first gallery image doubles as the thumbnail; a standalone
	// imageUrl is the fallback, and joins the gallery when not already in it.
	if len(meta.Images) > 0 {
		item.ThumbnailURL = meta.Images[0].URL
	} else if meta.ImageURL != "" {
		item.ThumbnailURL = meta.ImageURL
	}
	for _, img := range meta.Images {
		if img.URL == "" {
			continue
		}
		imgTitle := img.Title
		if imgTitle == "" {
			imgTitle = title
		}
		item.Images = append(item.Images, Image{Title: imgTitle, ImageURL: img.URL, Action: img.Action})
	}
	if meta.ImageURL != "" && !hasImageURL(item.Images, meta.ImageURL) {
		item.Images = append(item.Images, Image{Title: title, ImageURL: meta.ImageURL})
	}

	if meta.Navigation != nil {
		item.Navigation = *meta.Navigation
	}
	return item
}

func hasImageURL(images []Image, url string) bool {
	for _, img := range images {
		if img.ImageURL == url {
			return true
		}
	}
	return false
}
