// Package posts turns raw changelog and snapshot records into one reconciled,
// engagement-annotated post timeline.
package posts

import (
	"strings"
	"time"
)

type MediaType string

const (
	MediaText         MediaType = "TEXT"
	MediaImage        MediaType = "IMAGE"
	MediaVideo        MediaType = "VIDEO"
	MediaArticle      MediaType = "ARTICLE"
	MediaURNReference MediaType = "URN_REFERENCE"
)

// MediaTypes is the fixed classification set, in display order.
var MediaTypes = []MediaType{MediaText, MediaImage, MediaVideo, MediaArticle, MediaURNReference}

type Source string

const (
	SourceChangelog  Source = "changelog"
	SourceHistorical Source = "historical"
)

const (
	msPerDay     = int64(24 * time.Hour / time.Millisecond)
	repostAfter  = 30
	fallbackText = "Post content from LinkedIn"
)

// Post is the canonical reconciled post. Values are never mutated after
// construction; a refresh produces new Posts.
type Post struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Timestamp       int64     `json:"timestamp"`
	Likes           int       `json:"likes"`
	Comments        int       `json:"comments"`
	Shares          int       `json:"shares"`
	MediaType       MediaType `json:"mediaType"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	CanRepost       bool      `json:"canRepost"`
	DaysSincePosted int       `json:"daysSincePosted"`
	Source          Source    `json:"source"`
	Author          string    `json:"author,omitempty"`
	Link            string    `json:"link,omitempty"`
}

// Engagement returns likes + comments + shares.
func (p Post) Engagement() int {
	return p.Likes + p.Comments + p.Shares
}

// Options carries the environment a normalizer needs. Now is the only
// time-dependent input.
type Options struct {
	Now              time.Time
	Location         *time.Location
	MediaProxyPrefix string
	StableIDs        bool
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// age derives daysSincePosted and canRepost. Future timestamps count as day 0.
func age(ts int64, now time.Time) (days int, canRepost bool) {
	diff := now.UnixMilli() - ts
	if diff < 0 {
		diff = 0
	}
	days = int(diff / msPerDay)
	return days, days >= repostAfter
}

// ParseMediaType maps an upstream media category onto the classification set.
// A missing or unknown category is TEXT, or IMAGE when media is attached.
func ParseMediaType(category string, hasMedia bool) MediaType {
	switch strings.ToUpper(strings.TrimSpace(category)) {
	case "IMAGE", "RICH", "CAROUSEL":
		return MediaImage
	case "VIDEO", "LIVE_VIDEO":
		return MediaVideo
	case "ARTICLE", "NATIVE_DOCUMENT":
		return MediaArticle
	case "URN_REFERENCE":
		return MediaURNReference
	case "NONE", "TEXT":
		return MediaText
	}
	if hasMedia {
		return MediaImage
	}
	return MediaText
}
