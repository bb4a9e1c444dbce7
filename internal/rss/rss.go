// Package rss renders classified signal entries as an RSS 2.0 document.
package rss

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"wiresum/internal/database"
)

// RSS is the root element of an RSS feed.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	AtomNS  string   `xml:"xmlns:atom,attr,omitempty"`
	Channel Channel  `xml:"channel"`
}

// Channel represents the channel element in an RSS feed.
type Channel struct {
	XMLName       xml.Name  `xml:"channel"`
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language,omitempty"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	SelfLink      *AtomLink `xml:"atom:link,omitempty"`
	Items         []Item    `xml:"item"`
}

// AtomLink is the rel="self" link feed validators expect.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Item represents an item element in an RSS feed.
type Item struct {
	XMLName     xml.Name `xml:"item"`
	Title       string   `xml:"title"`
	Link        string   `xml:"link,omitempty"`
	Description string   `xml:"description,omitempty"`
	Author      string   `xml:"author,omitempty"`
	Category    []string `xml:"category,omitempty"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        GUID     `xml:"guid"`
}

// GUID is an item identifier. IsPermaLink is false because entry ids are
// not URLs.
type GUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Meta describes the channel. SelfURL, when set, becomes the atom:link.
type Meta struct {
	Title       string
	Link        string
	Description string
	SelfURL     string
}

// Build turns entries into a channel. labels maps interest key to label and
// is used for item categories; unknown keys render as "Other".
func Build(meta Meta, entries []database.Entry, labels map[string]string, now time.Time) RSS {
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, entryItem(e, labels))
	}
	doc := RSS{
		Version: "2.0",
		Channel: Channel{
			Title:         meta.Title,
			Link:          meta.Link,
			Description:   meta.Description,
			Language:      "en",
			LastBuildDate: now.UTC().Format(time.RFC1123Z),
			Items:         items,
		},
	}
	if meta.SelfURL != "" {
		doc.AtomNS = "http://www.w3.org/2005/Atom"
		doc.Channel.SelfLink = &AtomLink{Href: meta.SelfURL, Rel: "self", Type: "application/rss+xml"}
	}
	return doc
}

func entryItem(e database.Entry, labels map[string]string) Item {
	item := Item{
		Title: deref(e.Title, "(untitled)"),
		Link:  deref(e.URL, ""),
		GUID:  GUID{Value: fmt.Sprintf("wiresum:entry:%d", e.ID)},
	}
	if e.FeedName != nil {
		item.Author = *e.FeedName
		if e.Author != nil && *e.Author != "" {
			item.Author = *e.Author + " (" + *e.FeedName + ")"
		}
	}
	category := "Other"
	if e.Interest != nil {
		if label, ok := labels[*e.Interest]; ok {
			category = label
		}
	}
	item.Category = []string{category}
	if e.Reasoning != nil {
		item.Description = strings.TrimSpace(*e.Reasoning)
	}
	if e.PublishedAt != nil {
		item.PubDate = e.PublishedAt.UTC().Format(time.RFC1123Z)
	}
	return item
}

// Write encodes doc with an XML header.
func Write(w io.Writer, doc RSS) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("error encoding rss: %w", err)
	}
	return enc.Flush()
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
