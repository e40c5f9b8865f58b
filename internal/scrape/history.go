package scrape

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"rulesync/internal/rules"
)

// sentinelYearCutoff rejects the source's placeholder dates. The site
// renders 01/01/0001 for versions with no recorded date; nothing real
// predates statehood.
const sentinelYearCutoff = 1889

var (
	ruleNumberPattern     = regexp.MustCompile(`(?i)rule\s+(\d+(?:\.\d+)?)`)
	orderNumberPattern    = regexp.MustCompile(`(?i)order\s+(\d+)`)
	appendixLetterPattern = regexp.MustCompile(`(?i)appendix\s+([A-Za-z])\b`)
	urlSlugPattern        = regexp.MustCompile(`/legal-resources/rules/[^/]+/([\w][\w-]*)$`)
	headerDatePattern     = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
)

// Extractor parses a rule page into its version history. It performs no
// network I/O.
type Extractor struct {
	baseURL string
	log     zerolog.Logger
}

func NewExtractor(baseURL string, log zerolog.Logger) *Extractor {
	return &Extractor{baseURL: baseURL, log: log}
}

// Extract builds the History for one rule page. An empty Versions slice
// means the page carried no usable version information and the rule should
// be skipped, not treated as an error.
func (e *Extractor) Extract(document []byte, ruleURL string) rules.History {
	doc, err := parseDocument(document)
	if err != nil {
		e.log.Warn().Str("url", ruleURL).Err(err).Msg("unparseable rule page")
		return rules.History{CurrentURL: ruleURL, RuleNumber: "unknown"}
	}

	title := e.extractTitle(doc)
	ruleNumber := extractRuleNumber(title, ruleURL)

	versions := e.parseVersionTable(doc, ruleURL)
	notes := e.extractNotes(doc)

	if len(versions) == 0 {
		if effective, ok := extractHeaderEffectiveDate(doc); ok {
			versions = []rules.Version{{
				Effective: effective,
				URL:       ruleURL,
				Current:   true,
			}}
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Effective.Before(versions[j].Effective)
	})

	e.log.Debug().
		Str("rule", ruleNumber).
		Int("versions", len(versions)).
		Msg("extracted version history")

	return rules.History{
		RuleNumber: ruleNumber,
		RuleTitle:  title,
		CurrentURL: ruleURL,
		Versions:   versions,
		Notes:      notes,
	}
}

func (e *Extractor) extractTitle(doc *html.Node) string {
	if h1 := findFirst(doc, byTag("h1")); h1 != nil {
		return collapseSpace(textContent(h1))
	}
	if titleTag := findFirst(doc, byTag("title")); titleTag != nil {
		text := collapseSpace(textContent(titleTag))
		// Strip a site prefix like "North Dakota Court System - ".
		if _, rest, found := strings.Cut(text, " - "); found {
			return strings.TrimSpace(rest)
		}
		return text
	}
	return "Untitled Rule"
}

func extractRuleNumber(title, ruleURL string) string {
	if m := ruleNumberPattern.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	if m := orderNumberPattern.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	if m := appendixLetterPattern.FindStringSubmatch(title); m != nil {
		return "appendix-" + strings.ToLower(m[1])
	}
	if m := urlSlugPattern.FindStringSubmatch(ruleURL); m != nil {
		return m[1]
	}
	return "unknown"
}

func (e *Extractor) parseVersionTable(doc *html.Node, ruleURL string) []rules.Version {
	widget := findFirst(doc, byTagClass("article", "widget-rule-version-history-widget"))
	if widget == nil {
		return nil
	}
	table := findFirst(widget, byTagClass("table", "table"))
	if table == nil {
		return nil
	}

	baseSlug := lastSlug(ruleURL)
	seen := make(map[time.Time]bool)

	var versions []rules.Version
	for _, row := range findAll(table, byTag("tr")) {
		cells := findAll(row, byTag("td"))
		if len(cells) < 2 {
			continue // header row
		}

		effectiveText := collapseSpace(textContent(cells[0]))
		obsoleteText := collapseSpace(textContent(cells[1]))

		effective, ok := parseTableDate(effectiveText)
		if !ok {
			e.log.Warn().Str("url", ruleURL).Str("date", effectiveText).Msg("dropping row with unparseable effective date")
			continue
		}
		if effective.Year() < sentinelYearCutoff {
			e.log.Warn().Str("url", ruleURL).Str("date", effectiveText).Msg("dropping row with placeholder date")
			continue
		}
		if seen[effective] {
			e.log.Warn().Str("url", ruleURL).Str("date", effectiveText).Msg("dropping row with duplicate effective date")
			continue
		}
		seen[effective] = true

		var obsolete *time.Time
		if obsoleteText != "" {
			if parsed, ok := parseTableDate(obsoleteText); ok {
				obsolete = &parsed
			}
		}

		versionURL := ""
		suffix := ""
		if link := findFirst(row, func(n *html.Node) bool { return n.Data == "a" && attr(n, "href") != "" }); link != nil {
			href := attr(link, "href")
			versionURL = resolveURL(e.baseURL, href)
			linkSlug := lastSlug(href)
			if linkSlug != baseSlug && strings.HasPrefix(linkSlug, baseSlug+"-") {
				suffix = linkSlug[len(baseSlug)+1:]
			}
		}

		versions = append(versions, rules.Version{
			Effective: effective,
			Obsolete:  obsolete,
			URL:       versionURL,
			Suffix:    suffix,
			Current:   obsolete == nil,
		})
	}
	return versions
}

func parseTableDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"1/2/2006", "1/2/06"} {
		if t, err := time.Parse(layout, text); err == nil {
			return rules.DateOnly(t), true
		}
	}
	return time.Time{}, false
}

func extractHeaderEffectiveDate(doc *html.Node) (time.Time, bool) {
	h4 := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "h4" && strings.Contains(strings.ToLower(textContent(n)), "effective date")
	})
	if h4 == nil {
		return time.Time{}, false
	}
	match := headerDatePattern.FindString(textContent(h4))
	if match == "" {
		return time.Time{}, false
	}
	return parseTableDate(match)
}

// extractNotes flattens the explanatory-notes section into paragraph text
// separated by blank lines, rendering links inline as [text](url) so the
// focuser can match dates and committee references on plain text.
func (e *Extractor) extractNotes(doc *html.Node) string {
	section := findFirst(doc, byID("collapseExplanatoryNotes"))
	if section == nil {
		return ""
	}
	body := findFirst(section, byTagClass("div", "card-body"))
	if body == nil {
		return ""
	}

	var parts []string
	for _, p := range findAll(body, byTag("p")) {
		if text := e.textWithLinks(p); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (e *Extractor) textWithLinks(n *html.Node) string {
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch {
		case child.Type == html.TextNode:
			sb.WriteString(child.Data)
		case child.Type == html.ElementNode && child.Data == "a":
			text := textContent(child)
			if href := attr(child, "href"); href != "" {
				sb.WriteString("[" + text + "](" + resolveURL(e.baseURL, href) + ")")
			} else {
				sb.WriteString(text)
			}
		case child.Type == html.ElementNode:
			sb.WriteString(textContent(child))
		}
	}
	return collapseSpace(sb.String())
}
