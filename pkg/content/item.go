// Package content builds the CurrentItem view of the post or comment under
// evaluation: the per-event, never-cached facts the rest of the pipeline
// reasons about.
package content

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind distinguishes a post from a comment.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// Type is the post's media/body type, one of text/link/image/video/gallery/poll.
type Type string

const (
	TypeText    Type = "text"
	TypeLink    Type = "link"
	TypeImage   Type = "image"
	TypeVideo   Type = "video"
	TypeGallery Type = "gallery"
	TypePoll    Type = "poll"
)

// Item is the CurrentItem: the content under evaluation, built fresh for
// every event and never cached.
type Item struct {
	Kind        Kind
	Title       string
	Body        string
	Subreddit   string
	Type        Type
	URLs        []string
	Domains     []string
	WordCount   int
	CharCount   int
	TitleLength int
	BodyLength  int
	HasMedia    bool
	LinkURL     string
	IsEdited    bool
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// New builds an Item from raw event fields. itemType, when empty, is
// inferred: "link" if a bare URL fills the body, else "text".
func New(kind Kind, title, body, subreddit, itemType string, isEdited bool) Item {
	urls := urlPattern.FindAllString(body, -1)
	urls = append(urls, urlPattern.FindAllString(title, -1)...)

	domains := make([]string, 0, len(urls))
	for _, u := range urls {
		if d := extractDomain(u); d != "" {
			domains = append(domains, d)
		}
	}

	t := Type(itemType)
	if t == "" {
		t = TypeText
		if len(urls) == 1 && strings.TrimSpace(body) == urls[0] {
			t = TypeLink
		}
	}

	var linkURL string
	if t == TypeLink && len(urls) > 0 {
		linkURL = urls[0]
	}

	return Item{
		Kind:        kind,
		Title:       title,
		Body:        body,
		Subreddit:   subreddit,
		Type:        t,
		URLs:        urls,
		Domains:     domains,
		WordCount:   countWords(body),
		CharCount:   len(body),
		TitleLength: len(title),
		BodyLength:  len(body),
		HasMedia:    t == TypeImage || t == TypeVideo || t == TypeGallery,
		LinkURL:     linkURL,
		IsEdited:    isEdited,
	}
}

// HasExternalLinks reports whether the item contains any URL.
func (i Item) HasExternalLinks() bool {
	return len(i.URLs) > 0
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func extractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
