package instagram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrURLRequired  = errors.New("instagram url required")
	ErrNotInstagram = errors.New("not an instagram url")
	ErrNotPostURL   = errors.New("use a post/reel/tv/stories link, not a profile or home link")
	ErrMalformedURL = errors.New("malformed url")
)

var postPathRe = regexp.MustCompile(`(?i)^/(p|reel|reels|tv)/([A-Za-z0-9_-]+)/?`)

// Stories links address a username plus a numeric story id; both segments
// are part of the permalink and must survive canonicalization.
var storyPathRe = regexp.MustCompile(`(?i)^/stories/([A-Za-z0-9_.]+)(?:/([0-9]+))?/?`)

// Normalize canonicalizes an Instagram post URL: https forced, www forced,
// query string and fragment stripped, path reduced to /type/slug/. The result
// is the stored comparison key, so links that differ only by tracking
// parameters collapse to one submission.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrURLRequired
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", ErrMalformedURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrMalformedURL
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host != "instagram.com" {
		return "", ErrNotInstagram
	}

	if m := postPathRe.FindStringSubmatch(u.Path); m != nil {
		return fmt.Sprintf("https://www.instagram.com/%s/%s/", strings.ToLower(m[1]), m[2]), nil
	}
	if m := storyPathRe.FindStringSubmatch(u.Path); m != nil {
		if m[2] != "" {
			return fmt.Sprintf("https://www.instagram.com/stories/%s/%s/", m[1], m[2]), nil
		}
		return fmt.Sprintf("https://www.instagram.com/stories/%s/", m[1]), nil
	}
	return "", ErrNotPostURL
}
