package tui

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	fencedCodeRe = regexp.MustCompile(`(?s)<pre><code(?: class="language-([a-zA-Z0-9+-]+)")?>(.*?)</code></pre>`)
	inlineCodeRe = regexp.MustCompile(`<code>([^<]+)</code>`)
	headingRe    = regexp.MustCompile(`<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	strongRe     = regexp.MustCompile(`<strong>(.*?)</strong>`)
	emphasisRe   = regexp.MustCompile(`<em>(.*?)</em>`)
	anchorRe     = regexp.MustCompile(`<a href="([^"]*)"[^>]*>(.*?)</a>`)
	listItemRe   = regexp.MustCompile(`<li>(.*?)</li>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// MarkdownRenderer converts assistant markdown into styled terminal text.
// Goldmark produces HTML, which is then rewritten tag by tag; fenced code
// blocks go through chroma for highlighting.
type MarkdownRenderer struct {
	md        goldmark.Markdown
	theme     Theme
	formatter chroma.Formatter
	style     *chroma.Style
}

func NewMarkdownRenderer(theme Theme) *MarkdownRenderer {
	return &MarkdownRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		theme:     theme,
		formatter: formatters.Get("terminal256"),
		style:     styles.Get("friendly"),
	}
}

func (r *MarkdownRenderer) Render(content string, width int) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return content
	}
	return r.rewrite(buf.String(), width)
}

func (r *MarkdownRenderer) rewrite(doc string, width int) string {
	var fenced []string
	doc = fencedCodeRe.ReplaceAllStringFunc(doc, func(m string) string {
		parts := fencedCodeRe.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		code := decodeEntities(strings.TrimRight(parts[2], "\n"))
		block := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(r.theme.Border).
			Padding(0, 1).
			Render(r.highlight(code, parts[1]))
		fenced = append(fenced, block)
		return fmt.Sprintf("\n\x00fence:%d\x00\n", len(fenced)-1)
	})

	doc = inlineCodeRe.ReplaceAllStringFunc(doc, func(m string) string {
		parts := inlineCodeRe.FindStringSubmatch(m)
		if len(parts) < 2 {
			return m
		}
		return r.theme.Spinner.Render(decodeEntities(parts[1]))
	})

	doc = headingRe.ReplaceAllStringFunc(doc, func(m string) string {
		parts := headingRe.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		return r.theme.TopBarTitle.Render(anyTagRe.ReplaceAllString(parts[2], "")) + "\n"
	})

	doc = strongRe.ReplaceAllString(doc, "\x1b[1m$1\x1b[22m")
	doc = emphasisRe.ReplaceAllString(doc, "\x1b[3m$1\x1b[23m")

	doc = anchorRe.ReplaceAllStringFunc(doc, func(m string) string {
		parts := anchorRe.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		if parts[1] == parts[2] {
			return parts[2]
		}
		return fmt.Sprintf("%s (%s)", parts[2], parts[1])
	})

	doc = listItemRe.ReplaceAllString(doc, "  • $1\n")

	doc = strings.NewReplacer(
		"</p>", "\n",
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<blockquote>", "", "</blockquote>", "",
	).Replace(doc)
	doc = anyTagRe.ReplaceAllString(doc, "")
	doc = decodeEntities(doc)

	for i, block := range fenced {
		doc = strings.ReplaceAll(doc, fmt.Sprintf("\x00fence:%d\x00", i), block)
	}

	doc = blankRunsRe.ReplaceAllString(doc, "\n\n")
	if width > 0 {
		doc = wordwrap.String(doc, width)
	}
	return strings.TrimSpace(doc)
}

func (r *MarkdownRenderer) highlight(code, lang string) string {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, iterator); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#x27;", "'",
	"&#x60;", "`",
	"&nbsp;", " ",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}
