package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"wiresum/internal/security/netutil"
)

// MaxLocalChars caps the text returned by the local extractor.
const MaxLocalChars = 20000

const maxPageBytes = 5 << 20

// Boilerplate elements dropped before text is collected.
var strippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"aside":    true,
	"footer":   true,
	"header":   true,
	"form":     true,
	"iframe":   true,
}

// Local fetches the page itself and keeps the text of the main content
// element. Destinations are checked by guard before and during the dial.
type Local struct {
	client *http.Client
	guard  netutil.Guard
}

// NewLocal returns a local extractor.
func NewLocal(guard netutil.Guard, timeout time.Duration) *Local {
	transport := &http.Transport{
		DialContext:           guard.DialContext(10 * time.Second),
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Local{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				_, err := guard.CheckURL(req.URL.String())
				return err
			},
		},
		guard: guard,
	}
}

// Name identifies the extractor in logs and metrics.
func (l *Local) Name() string { return "local" }

// Extract downloads url and returns its readable text.
func (l *Local) Extract(ctx context.Context, url string) (string, error) {
	u, err := l.guard.CheckURL(url)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "wiresum/2.0 (+https://github.com/wiresum)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("got status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}
	return ExtractText(io.LimitReader(resp.Body, maxPageBytes))
}

// ExtractText parses an HTML document and returns the whitespace-collapsed
// text of its article, main or body element, in that order of preference.
func ExtractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("error parsing html: %w", err)
	}

	var strip func(*html.Node)
	strip = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.CommentNode || (c.Type == html.ElementNode && strippedElements[c.Data]) {
				n.RemoveChild(c)
			} else {
				strip(c)
			}
			c = next
		}
	}
	strip(root)

	doc := goquery.NewDocumentFromNode(root)
	var text string
	for _, sel := range []string{"article", "main", "[role=main]", "body"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text = collapse(s.Text()); text != "" {
				break
			}
		}
	}
	if text == "" {
		return "", fmt.Errorf("no readable text found")
	}
	if r := []rune(text); len(r) > MaxLocalChars {
		text = string(r[:MaxLocalChars])
	}
	return text, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
