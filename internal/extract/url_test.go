package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostDisallowed(t *testing.T) {
	blocked := []string{
		"localhost",
		"0.0.0.0",
		"127.0.0.1",
		"10.0.0.5",
		"192.168.1.20",
		"172.16.0.1",
		"172.31.255.255",
		"printer.local",
		"",
	}
	for _, host := range blocked {
		assert.True(t, hostDisallowed(host), "expected %q to be blocked", host)
	}

	allowed := []string{
		"example.com",
		"172.15.0.1",
		"172.32.0.1",
		"12.7.0.1",
		"mylocal.example.com",
	}
	for _, host := range allowed {
		assert.False(t, hostDisallowed(host), "expected %q to be allowed", host)
	}
}

func TestURLRejectsPrivateHostsBeforeFetch(t *testing.T) {
	// these must fail fast without any network round trip
	for _, raw := range []string{
		"http://localhost/admin",
		"http://10.0.0.5/page",
		"http://192.168.1.1/",
		"https://internal.local/docs",
	} {
		_, err := URL(context.Background(), raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrFetch, raw)
		assert.Contains(t, err.Error(), "not allowed", raw)
	}
}

func TestURLRejectsNonHTTPSchemes(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/file", "file:///etc/passwd", "gopher://example.com"} {
		_, err := URL(context.Background(), raw)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrFetch, raw)
	}
}

func TestParseHTMLSkipsNonContentSubtrees(t *testing.T) {
	page := `<html><head>
		<title>料金プラン | Example</title>
		<style>body { color: red; }</style>
		<script>var secret = "nope";</script>
	</head><body>
		<h1>プラン一覧</h1>
		<noscript>enable js</noscript>
		<p>ベーシック 1,000円/月</p>
		<svg><text>chart label</text></svg>
		<p>プロ 3,000円/月</p>
	</body></html>`

	title, text := parseHTML(strings.NewReader(page))
	assert.Contains(t, title, "料金プラン")
	assert.Contains(t, text, "プラン一覧")
	assert.Contains(t, text, "1,000円/月")
	assert.Contains(t, text, "3,000円/月")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "enable js")
	assert.NotContains(t, text, "chart label")
}

func TestParseHTMLDecodesEntities(t *testing.T) {
	_, text := parseHTML(strings.NewReader(`<p>A &amp; B</p>`))
	assert.Contains(t, text, "A & B")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "日本語", truncateRunes("日本語", 5))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
}
