// Package fetcher loads feed pages from HTTP or from disk.
package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"feedguard/internal/dom"
)

var (
	ErrInvalidURL = errors.New("fetcher: invalid url")
	ErrNotHTML    = errors.New("fetcher: non-html content")
	ErrStatus     = errors.New("fetcher: unexpected http status")
)

// Page is a parsed document and where it came from.
type Page struct {
	Doc         *html.Node
	Location    string
	ContentType string
	Took        time.Duration
}

type HTTPClient struct {
	client    *http.Client
	sizeCap   int64
	userAgent string
}

func NewHTTPClient(timeout, dialTimeout time.Duration, sizeCap int64) *HTTPClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		sizeCap:   sizeCap,
		userAgent: "feedguard/1.0 (+https://github.com/feedguard)",
	}
}

// Fetch downloads rawURL and parses it. Bodies beyond the size cap are
// truncated.
func (h *HTTPClient) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	start := time.Now()
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	doc, err := dom.Parse(io.LimitReader(body, h.sizeCap), contentType)
	if err != nil {
		return nil, err
	}
	return &Page{
		Doc:         doc,
		Location:    resp.Request.URL.String(),
		ContentType: contentType,
		Took:        time.Since(start),
	}, nil
}

// isHTML accepts an empty content type; some servers omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// ReadFile parses a saved page. The location is a file:// URL unless the
// caller overrides it.
func ReadFile(path, location string) (*Page, error) {
	start := time.Now()
	f, err := os.Open(path) //nolint:gosec // user-provided input
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := dom.Parse(f, "text/html")
	if err != nil {
		return nil, fmt.Errorf("fetcher: parse %s: %w", path, err)
	}
	if location == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		location = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return &Page{Doc: doc, Location: location, ContentType: "text/html", Took: time.Since(start)}, nil
}

// Load fetches http(s) sources and reads anything else from disk.
func (h *HTTPClient) Load(ctx context.Context, source string) (*Page, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return h.Fetch(ctx, source)
	}
	return ReadFile(strings.TrimPrefix(source, "file://"), "")
}
