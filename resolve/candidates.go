package resolve

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultThumbnailSize is the thumbnail width (pixels) used when none is requested.
const DefaultThumbnailSize = 1000

// Endpoints are URL templates for the access modes of one image host.
// Placeholders: {id} (query-escaped identifier), {size} (thumbnail width), {key} (credential).
type Endpoints struct {
	View      string
	Thumbnail string
	ByID      string
	Download  string
	Media     string // raw bytes, used for materialization
}

// DefaultEndpoints target a Google Drive style host.
var DefaultEndpoints = Endpoints{
	View:      "https://drive.google.com/uc?export=view&id={id}",
	Thumbnail: "https://drive.google.com/thumbnail?id={id}&sz=w{size}",
	ByID:      "https://lh3.googleusercontent.com/d/{id}",
	Download:  "https://drive.google.com/uc?export=download&id={id}",
	Media:     "https://www.googleapis.com/drive/v3/files/{id}?alt=media&key={key}",
}

func (e Endpoints) withDefaults() Endpoints {
	if e.View == "" {
		e.View = DefaultEndpoints.View
	}
	if e.Thumbnail == "" {
		e.Thumbnail = DefaultEndpoints.Thumbnail
	}
	if e.ByID == "" {
		e.ByID = DefaultEndpoints.ByID
	}
	if e.Download == "" {
		e.Download = DefaultEndpoints.Download
	}
	if e.Media == "" {
		e.Media = DefaultEndpoints.Media
	}
	return e
}

// Candidates returns the ordered candidate URLs for id: view, thumbnail, by-id, download.
// The order is fixed; only the thumbnail width varies. thumbSize <= 0 selects DefaultThumbnailSize.
func Candidates(e Endpoints, id string, thumbSize int) []string {
	e = e.withDefaults()
	if thumbSize <= 0 {
		thumbSize = DefaultThumbnailSize
	}
	r := strings.NewReplacer("{id}", url.QueryEscape(id), "{size}", strconv.Itoa(thumbSize))
	return []string{
		r.Replace(e.View),
		r.Replace(e.Thumbnail),
		r.Replace(e.ByID),
		r.Replace(e.Download),
	}
}

// MediaURL is the raw-bytes URL for id authenticated with key.
func MediaURL(e Endpoints, id, key string) string {
	e = e.withDefaults()
	return strings.NewReplacer("{id}", url.QueryEscape(id), "{key}", url.QueryEscape(key)).Replace(e.Media)
}
