package model

import (
	"time"

	"metaphorspace/internal/htmltext"
)

// Story is a single post served by the content API.
// Title, Excerpt and Content hold the rendered HTML exactly as served.
type Story struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Excerpt          string    `json:"excerpt"`
	Content          string    `json:"content,omitempty"`
	Link             string    `json:"link,omitempty"`
	Date             time.Time `json:"date"`
	FeaturedMediaURL string    `json:"featured_media_url,omitempty"`
}

// HasImage reports whether the post embeds a featured image.
func (s Story) HasImage() bool {
	return s.FeaturedMediaURL != ""
}

func (s Story) PlainTitle() string {
	return htmltext.Plain(s.Title)
}

func (s Story) PlainExcerpt() string {
	return htmltext.Plain(s.Excerpt)
}

func (s Story) PlainContent() string {
	return htmltext.Plain(s.Content)
}
