package intelligence

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)

// trackerHostPrefixes mark hosts used by mail tools for click tracking.
var trackerHostPrefixes = []string{"click.", "clicks.", "links.", "link.", "track.", "trk.", "lnk.", "email."}

// LinkResolver replaces tracking and safe-link wrappers with their targets.
// Wrappers that carry the target in the URL are unwrapped offline; other
// tracker links are resolved with a HEAD request that follows redirects.
type LinkResolver struct {
	client   *http.Client
	timeout  time.Duration
	maxLinks int
}

// NewLinkResolver creates a resolver. A zero timeout disables network lookups.
func NewLinkResolver(client *http.Client, timeout time.Duration) *LinkResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &LinkResolver{client: client, timeout: timeout, maxLinks: 10}
}

// Unwrap rewrites every URL in text. Failures leave the URL unchanged.
func (r *LinkResolver) Unwrap(ctx context.Context, text string) string {
	seen := make(map[string]string)
	lookups := 0

	return urlPattern.ReplaceAllStringFunc(text, func(raw string) string {
		if resolved, ok := seen[raw]; ok {
			return resolved
		}

		resolved := raw
		if target := unwrapEmbedded(raw); target != "" {
			resolved = target
		} else if r.timeout > 0 && lookups < r.maxLinks && isTracker(raw) {
			lookups++
			resolved = r.resolve(ctx, raw)
		}

		seen[raw] = resolved
		return resolved
	})
}

func (r *LinkResolver) resolve(ctx context.Context, raw string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return raw
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return raw
	}
	resp.Body.Close()

	if resp.Request == nil || resp.Request.URL == nil {
		return raw
	}
	return resp.Request.URL.String()
}

// unwrapEmbedded returns the target of wrappers that carry it in the URL.
func unwrapEmbedded(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.HasSuffix(host, "safelinks.protection.outlook.com"):
		return u.Query().Get("url")
	case (host == "www.google.com" || host == "google.com") && u.Path == "/url":
		if q := u.Query().Get("q"); q != "" {
			return q
		}
		return u.Query().Get("url")
	case host == "urldefense.com" && strings.HasPrefix(u.Path, "/v3/__"):
		inner := strings.TrimPrefix(raw[strings.Index(raw, "/v3/__"):], "/v3/__")
		if end := strings.Index(inner, "__"); end > 0 {
			return inner[:end]
		}
	}
	return ""
}

func isTracker(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range trackerHostPrefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/click") || strings.Contains(path, "/redirect") || strings.Contains(path, "/track")
}
