package htmltext

import (
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Readable runs the post body through readability before flattening it, which
// drops share buttons, related-post blocks and similar chrome that WordPress
// themes inject into rendered content. Short bodies that readability refuses
// are flattened directly.
func Readable(title, content, link string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	pageURL, err := url.Parse(link)
	if err != nil || pageURL.Host == "" {
		pageURL = &url.URL{Scheme: "https", Host: "localhost"}
	}

	doc := "<html><head><title>" + html.EscapeString(Plain(title)) + "</title></head><body><article>" +
		content + "</article></body></html>"

	article, err := readability.FromReader(strings.NewReader(doc), pageURL)
	if err != nil {
		return Plain(content)
	}

	text := Plain(article.Content)
	if text == "" {
		return Plain(content)
	}
	return text
}
