package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"knowchat/internal/pkg/textnorm"
)

const (
	maxPageTextChars = 50000
	maxTitleChars    = 120
	maxBodyBytes     = 4 << 20
)

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
}

var urlClient = &http.Client{
	Timeout: 20 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		// The SSRF guard applies to every hop, not just the first URL.
		return checkURL(req.URL)
	},
}

// URL fetches an http(s) page, strips markup and returns its title and text.
// Private-network and loopback hosts are rejected before any fetch occurs.
func URL(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Result{}, fmt.Errorf("%w: invalid url: %v", ErrFetch, err)
	}
	if err := checkURL(parsed); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := urlClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "text/html") {
		return Result{}, fmt.Errorf("%w: content type %q is not html", ErrFetch, contentType)
	}

	title, text := parseHTML(io.LimitReader(resp.Body, maxBodyBytes))

	title = truncateRunes(textnorm.Normalize(title), maxTitleChars)
	if title == "" {
		title = resp.Request.URL.Hostname()
	}
	return Result{
		Title: title,
		Text:  truncateRunes(textnorm.Normalize(text), maxPageTextChars),
	}, nil
}

func checkURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrFetch, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if hostDisallowed(host) {
		return fmt.Errorf("%w: host %q not allowed", ErrFetch, host)
	}
	return nil
}

func hostDisallowed(host string) bool {
	if host == "" || host == "localhost" || host == "0.0.0.0" {
		return true
	}
	if strings.HasSuffix(host, ".local") {
		return true
	}
	for _, prefix := range []string{"127.", "10.", "192.168."} {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	if strings.HasPrefix(host, "172.") {
		parts := strings.Split(host, ".")
		if len(parts) >= 2 {
			if second, err := strconv.Atoi(parts[1]); err == nil && second >= 16 && second <= 31 {
				return true
			}
		}
	}
	return false
}

// parseHTML walks the token stream, skipping script/style/noscript/svg
// subtrees, and collects the page title and visible text. The tokenizer
// decodes entities for us.
func parseHTML(r io.Reader) (title, text string) {
	tokenizer := html.NewTokenizer(r)
	var sb strings.Builder
	var titleSB strings.Builder
	skipDepth := 0
	inTitle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return titleSB.String(), sb.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedElements[tag] {
				skipDepth++
				continue
			}
			if tag == "title" && skipDepth == 0 {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedElements[tag] && skipDepth > 0 {
				skipDepth--
				continue
			}
			if tag == "title" {
				inTitle = false
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			chunk := string(tokenizer.Text())
			if inTitle {
				titleSB.WriteString(chunk)
				continue
			}
			sb.WriteString(chunk)
			sb.WriteByte(' ')
		}
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
