package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var (
	paddingPattern = regexp.MustCompile(`padding-left:\s*(\d+)`)
	blankRun       = regexp.MustCompile(`\n{3,}`)
	multiSpace     = regexp.MustCompile(` +`)
)

// pixelsPerIndent is the site's padding-left step for one level of
// sub-clause nesting. Indentation is the only signal the source gives for
// nesting, so it maps 1:1 onto blockquote depth.
const pixelsPerIndent = 30

// documentToMarkdown converts a rule page to markdown. The rule body lives
// in an article tag; older archived pages use a generic content wrapper.
func documentToMarkdown(doc *html.Node, title string) string {
	article := findFirst(doc, byTagClass("article", "rule"))
	if article == nil {
		article = findFirst(doc, byTagClass("article", "content-item"))
	}
	if article == nil {
		article = findFirst(doc, byTag("body"))
	}
	if article == nil {
		article = doc
	}

	parts := []string{"# " + title + "\n"}
	for child := article.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if child.Data == "header" {
			continue // title already captured
		}
		if md := elementToMarkdown(child, 0); strings.TrimSpace(md) != "" {
			parts = append(parts, md)
		}
	}

	markdown := strings.Join(parts, "\n")
	markdown = blankRun.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown) + "\n"
}

func elementToMarkdown(n *html.Node, depth int) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	if n.Type != html.ElementNode {
		return ""
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		text := collapseSpace(textContent(n))
		if text == "" {
			return ""
		}
		return "\n" + strings.Repeat("#", level) + " " + text + "\n"

	case "p":
		text := paragraphToMarkdown(n)
		if indent := indentLevel(n); indent > 0 {
			text = strings.Repeat("> ", indent) + text
		}
		return text + "\n\n"

	case "blockquote":
		return blockquoteToMarkdown(n, depth) + "\n"

	case "ul", "ol":
		return listToMarkdown(n, n.Data) + "\n"

	case "table":
		return tableToMarkdown(n) + "\n"

	case "div", "section", "article":
		var parts []string
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if md := elementToMarkdown(child, depth); strings.TrimSpace(md) != "" {
				parts = append(parts, md)
			}
		}
		return strings.Join(parts, "\n")

	default:
		return strings.TrimSpace(textContent(n))
	}
}

// indentLevel derives nesting depth from the inline padding-left style the
// source uses on paragraphs.
func indentLevel(n *html.Node) int {
	style := attr(n, "style")
	if style == "" {
		return 0
	}
	m := paddingPattern.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	px, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return px / pixelsPerIndent
}

// wrapEmphasis wraps text in emphasis markers, keeping whitespace outside
// them. CommonMark rejects delimiters flanked by whitespace on the inside,
// so "**text **" must become "**text** ".
func wrapEmphasis(text, marker string) string {
	stripped := strings.TrimSpace(text)
	if stripped == "" {
		return text
	}
	leading := text[:len(text)-len(strings.TrimLeft(text, " \t\n"))]
	trailing := text[len(strings.TrimRight(text, " \t\n")):]
	return leading + marker + stripped + marker + trailing
}

func paragraphToMarkdown(p *html.Node) string {
	var sb strings.Builder
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
			continue
		}
		if child.Type != html.ElementNode {
			continue
		}
		switch child.Data {
		case "strong", "b":
			if text := textContent(child); strings.TrimSpace(text) != "" {
				sb.WriteString(wrapEmphasis(text, "**"))
			}
		case "em", "i":
			if text := textContent(child); strings.TrimSpace(text) != "" {
				sb.WriteString(wrapEmphasis(text, "*"))
			}
		case "a":
			text := textContent(child)
			if href := attr(child, "href"); href != "" && strings.TrimSpace(text) != "" {
				sb.WriteString("[" + text + "](" + href + ")")
			} else {
				sb.WriteString(text)
			}
		case "br":
			sb.WriteString("\n")
		default:
			sb.WriteString(textContent(child))
		}
	}
	text := strings.TrimSpace(sb.String())
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.ReplaceAll(text, "\u00a0", " ")
}

func blockquoteToMarkdown(bq *html.Node, depth int) string {
	var segments []string
	var inline []string

	flush := func() {
		if len(inline) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(inline, ""))
		text = multiSpace.ReplaceAllString(text, " ")
		text = strings.ReplaceAll(text, "\u00a0", " ")
		if text != "" {
			segments = append(segments, strings.Repeat("> ", depth+1)+text)
		}
		inline = inline[:0]
	}

	for child := bq.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			if strings.TrimSpace(child.Data) != "" {
				inline = append(inline, child.Data)
			}
			continue
		}
		if child.Type != html.ElementNode {
			continue
		}
		switch child.Data {
		case "blockquote":
			flush()
			segments = append(segments, blockquoteToMarkdown(child, depth+1))
		case "strong", "b":
			if text := textContent(child); strings.TrimSpace(text) != "" {
				inline = append(inline, wrapEmphasis(text, "**"))
			}
		case "em", "i":
			if text := textContent(child); strings.TrimSpace(text) != "" {
				inline = append(inline, wrapEmphasis(text, "*"))
			}
		case "span":
			inline = append(inline, textContent(child))
		case "br":
			flush()
		case "a":
			text := textContent(child)
			if href := attr(child, "href"); href != "" && strings.TrimSpace(text) != "" {
				inline = append(inline, "["+text+"]("+href+")")
			} else {
				inline = append(inline, text)
			}
		case "p":
			flush()
			segments = append(segments, strings.Repeat("> ", depth+1)+paragraphToMarkdown(child))
		default:
			if text := strings.TrimSpace(textContent(child)); text != "" {
				inline = append(inline, text)
			}
		}
	}
	flush()
	return strings.Join(segments, "\n\n")
}

func listToMarkdown(list *html.Node, listType string) string {
	var items []string
	i := 0
	for child := list.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || child.Data != "li" {
			continue
		}
		text := collapseSpace(textContent(child))
		if text == "" {
			continue
		}
		i++
		if listType == "ol" {
			items = append(items, strconv.Itoa(i)+". "+text)
		} else {
			items = append(items, "- "+text)
		}
	}
	return strings.Join(items, "\n")
}

func tableToMarkdown(table *html.Node) string {
	var rows []string
	for _, tr := range findAll(table, byTag("tr")) {
		var cells []string
		hasHeader := false
		for _, cell := range findAll(tr, func(n *html.Node) bool { return n.Data == "td" || n.Data == "th" }) {
			if cell.Data == "th" {
				hasHeader = true
			}
			cells = append(cells, collapseSpace(textContent(cell)))
		}
		nonEmpty := false
		for _, c := range cells {
			if c != "" {
				nonEmpty = true
				break
			}
		}
		if !nonEmpty {
			continue
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		if hasHeader && len(rows) == 1 {
			seps := make([]string, len(cells))
			for i := range seps {
				seps[i] = "---"
			}
			rows = append(rows, "| "+strings.Join(seps, " | ")+" |")
		}
	}
	return strings.Join(rows, "\n")
}
