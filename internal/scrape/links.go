package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"rulesync/internal/rules"
)

// ruleLinkPattern matches /legal-resources/rules/{category}/{slug} with
// numeric (28), hyphenated (6-1), and appendix (appendix-a) slugs. The $
// anchor keeps sub-pages like /9/appendix-jury-standards out.
var ruleLinkPattern = regexp.MustCompile(`/legal-resources/rules/[a-z]+/([\w][\w-]*)$`)

// linkBlacklist drops navigation entries that are not rules.
var linkBlacklist = []string{"committee", "tables", "joint", "meeting"}

// FetchLinks downloads a category index page and returns its rule links,
// numeric rules first. This is the only operation whose failure fails a
// whole run: with no links there is nothing to synchronize.
func FetchLinks(ctx context.Context, client *Client, categoryURL string) ([]rules.Link, error) {
	body, err := client.Get(ctx, categoryURL)
	if err != nil {
		return nil, fmt.Errorf("fetch category page: %w", err)
	}
	doc, err := parseDocument(body)
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}

	seen := make(map[string]bool)
	var links []rules.Link

	add := func(href, title string) {
		m := ruleLinkPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		lower := strings.ToLower(href)
		for _, kw := range linkBlacklist {
			if strings.Contains(lower, kw) {
				return
			}
		}
		full := resolveURL(categoryURL, href)
		if seen[full] {
			return
		}
		seen[full] = true
		links = append(links, rules.Link{URL: full, Title: title, RuleNumber: m[1]})
	}

	for _, a := range findAll(doc, func(n *html.Node) bool { return n.Data == "a" && attr(n, "href") != "" }) {
		add(attr(a, "href"), collapseSpace(textContent(a)))
	}
	// The category dropdown lists every rule, including ones the page body
	// omits.
	for _, opt := range findAll(doc, func(n *html.Node) bool { return n.Data == "option" && attr(n, "value") != "" }) {
		add(attr(opt, "value"), collapseSpace(textContent(opt)))
	}

	rules.SortLinks(links)
	return links, nil
}
