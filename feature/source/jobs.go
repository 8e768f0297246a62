package source

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// jobLink is one posting found on a company jobs page.
type jobLink struct {
	Title string
	URL   string
}

var titleFromPath = regexp.MustCompile(`/jobs/[^-/]+-([^/]+)$`)

// parseJobLinks reads the postings of a company jobs page. Job cards
// (div.job with an h4.job-title) are preferred; without them every link to
// /companies/<slug>/jobs/<id> is used.
func parseJobLinks(body []byte, slug, baseURL string) ([]jobLink, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, err
	}

	links := jobCards(doc, base)
	if len(links) == 0 {
		links = jobAnchors(doc, slug, base)
	}
	return dedupeLinks(links), nil
}

func jobCards(doc *html.Node, base *url.URL) []jobLink {
	var out []jobLink
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Div || !hasClass(n, "job") {
			return true
		}
		title := find(n, func(c *html.Node) bool { return c.DataAtom == atom.H4 && hasClass(c, "job-title") })
		anchor := find(n, func(c *html.Node) bool { return c.DataAtom == atom.A && attr(c, "href") != "" })
		if title != nil && anchor != nil {
			out = append(out, jobLink{Title: text(title), URL: resolve(base, attr(anchor, "href"))})
		}
		return false
	})
	return out
}

func jobAnchors(doc *html.Node, slug string, base *url.URL) []jobLink {
	pattern := regexp.MustCompile(`(?i)^(?:https?://[^/]+)?/companies/` + regexp.QuoteMeta(slug) + `/jobs/[^/?#]+$`)

	var out []jobLink
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.A {
			return true
		}
		href := attr(n, "href")
		if !pattern.MatchString(href) {
			return true
		}
		title := text(n)
		if title == "" {
			title = nearbyHeading(n)
		}
		if title == "" {
			title = titleFromURL(href)
		}
		out = append(out, jobLink{Title: title, URL: resolve(base, href)})
		return false
	})
	return out
}

// nearbyHeading looks for an h4 within three ancestors of n.
func nearbyHeading(n *html.Node) string {
	p := n.Parent
	for i := 0; i < 3 && p != nil; i++ {
		if h := find(p, func(c *html.Node) bool { return c.DataAtom == atom.H4 }); h != nil {
			if t := text(h); t != "" {
				return t
			}
		}
		p = p.Parent
	}
	return ""
}

// titleFromURL turns /jobs/AbC12-senior-engineer into "Senior Engineer".
func titleFromURL(href string) string {
	m := titleFromPath.FindStringSubmatch(href)
	if m == nil {
		return "Untitled"
	}
	words := strings.Fields(strings.ReplaceAll(m[1], "-", " "))
	for i, w := range words {
		words[i] = capitalize(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

func dedupeLinks(links []jobLink) []jobLink {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, l := range links {
		if _, dup := seen[l.URL]; dup {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// walk visits n and its descendants in document order. fn returns false to
// skip the children of a node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element below n matching match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text is the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
