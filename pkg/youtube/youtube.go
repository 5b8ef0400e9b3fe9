// Package youtube extracts YouTube video identifiers from URLs and text.
package youtube

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	urlRe     = regexp.MustCompile(`(?:https?://)?(?:www\.|m\.|music\.)?(?:youtube\.com|youtu\.be|youtube-nocookie\.com)/[^\s<>"')\]]*`)
)

// IsVideoID reports whether s has the shape of a YouTube video ID.
func IsVideoID(s string) bool {
	return videoIDRe.MatchString(s)
}

// ExtractVideoID returns the video ID from a YouTube URL, or s itself if it
// already is an ID. It returns "" when nothing matches.
func ExtractVideoID(s string) string {
	s = strings.TrimSpace(s)
	if IsVideoID(s) {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segs[0]
	case "youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
		} else if len(segs) >= 2 {
			switch segs[0] {
			case "shorts", "embed", "live", "v", "e":
				id = segs[1]
			}
		}
	}
	if IsVideoID(id) {
		return id
	}
	return ""
}

// FindVideoID scans free text for the first YouTube URL and returns its
// video ID.
func FindVideoID(text string) string {
	for _, m := range urlRe.FindAllString(text, -1) {
		if id := ExtractVideoID(strings.TrimRight(m, ".,;:!?")); id != "" {
			return id
		}
	}
	return ""
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
