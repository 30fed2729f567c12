// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// DefaultCodeLanguage is the chroma lexer for code without a language
// tag.
const DefaultCodeLanguage = "python"

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func parser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

// RenderMarkdown renders input as styled terminal text wrapped to
// width. Soft line breaks become spaces so hard-wrapped source reflows.
// The output always carries ANSI 256-color escapes; callers writing to
// a non-terminal should print the source instead.
func RenderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	// Without an explicit profile lipgloss re-detects from the
	// environment and renders uncolored when there is no TTY.
	styles := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)

	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))
	walker := &markdownWalker{
		source: source,
		theme:  theme,
		width:  width,
		styles: styles,
	}
	ast.Walk(document, walker.walk)
	return strings.TrimRight(walker.output.String(), "\n")
}

// markdownWalker accumulates the inline content of the current block
// and wraps it when the block closes.
type markdownWalker struct {
	source []byte
	theme  Theme
	width  int
	styles *lipgloss.Renderer

	output strings.Builder
	inline strings.Builder

	// indent is the continuation prefix for nested list items; bullet
	// replaces it on the first line of an item.
	indent string
	bullet string

	bold   int
	italic int
	lists  []listLevel

	trailingNewlines int
}

type listLevel struct {
	ordered bool
	next    int
	tight   bool
	// markerWidth is the indent the open item added.
	markerWidth int
}

func (w *markdownWalker) style() lipgloss.Style {
	return w.styles.NewStyle()
}

func (w *markdownWalker) contentWidth() int {
	return max(w.width-len(w.indent), 10)
}

func (w *markdownWalker) tight() bool {
	return len(w.lists) > 0 && w.lists[len(w.lists)-1].tight
}

func (w *markdownWalker) write(s string) {
	if s == "" {
		return
	}
	w.output.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	newlines := len(s) - len(trimmed)
	if trimmed == "" {
		w.trailingNewlines += newlines
	} else {
		w.trailingNewlines = newlines
	}
}

func (w *markdownWalker) endLine() {
	if w.trailingNewlines < 1 {
		w.write("\n")
	}
}

func (w *markdownWalker) blankLine() {
	for w.trailingNewlines < 2 {
		w.write("\n")
	}
}

// prefixLines indents content, putting a pending bullet on the first
// line.
func (w *markdownWalker) prefixLines(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		prefix := w.indent
		if i == 0 && w.bullet != "" {
			prefix, w.bullet = w.bullet, ""
		}
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (w *markdownWalker) flushBlock() {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return
	}
	w.write(w.prefixLines(ansi.Wrap(content, w.contentWidth(), " ,.;-+|")))
	w.endLine()
	if !w.tight() {
		w.blankLine()
	}
}

func (w *markdownWalker) styledText(content string) string {
	style := w.style().Foreground(w.theme.NormalText)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	return style.Render(content)
}

func (w *markdownWalker) highlight(code, language string) string {
	if language == "" {
		language = DefaultCodeLanguage
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err != nil {
		return w.style().Foreground(w.theme.FaintText).Render(code)
	}
	return buffer.String()
}

func (w *markdownWalker) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.inline.Reset()
		} else {
			w.flushBlock()
		}

	case ast.KindHeading:
		if entering {
			w.inline.Reset()
			break
		}
		content := ansi.Strip(w.inline.String())
		w.inline.Reset()
		if content != "" {
			heading := w.style().Bold(true).Foreground(w.theme.HeaderForeground)
			w.blankLine()
			w.write(w.prefixLines(heading.Render(content)))
			w.endLine()
			w.blankLine()
		}

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			w.codeBlock(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindList:
		list := node.(*ast.List)
		if entering {
			w.lists = append(w.lists, listLevel{ordered: list.IsOrdered(), next: list.Start, tight: list.IsTight})
			break
		}
		w.lists = w.lists[:len(w.lists)-1]
		if !w.tight() {
			w.blankLine()
		}

	case ast.KindListItem:
		if len(w.lists) == 0 {
			break
		}
		level := &w.lists[len(w.lists)-1]
		if entering {
			marker := "- "
			if level.ordered {
				marker = fmt.Sprintf("%d. ", level.next)
				level.next++
			}
			level.markerWidth = len(marker)
			w.bullet = w.indent + marker
			w.indent += strings.Repeat(" ", level.markerWidth)
			break
		}
		w.indent = w.indent[:len(w.indent)-level.markerWidth]
		w.endLine()

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			w.inline.WriteString(w.styledText(string(textNode.Segment.Value(w.source))))
			switch {
			case textNode.HardLineBreak():
				w.inline.WriteString("\n")
			case textNode.SoftLineBreak():
				w.inline.WriteString(" ")
			}
		}

	case ast.KindString:
		if entering {
			w.inline.WriteString(w.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		counter := &w.italic
		if node.(*ast.Emphasis).Level >= 2 {
			counter = &w.bold
		}
		if entering {
			*counter++
		} else {
			*counter--
		}

	case ast.KindCodeSpan:
		if entering {
			var code strings.Builder
			for child := node.FirstChild(); child != nil; child = child.NextSibling() {
				if textNode, ok := child.(*ast.Text); ok {
					code.Write(textNode.Segment.Value(w.source))
				}
			}
			w.inline.WriteString(w.highlight(code.String(), ""))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if !entering {
			link := node.(*ast.Link)
			w.inline.WriteString(" " + w.style().Foreground(w.theme.FaintText).Render("("+string(link.Destination)+")"))
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.inline.WriteString(w.style().Foreground(w.theme.FaintText).Render(url))
		}
	}
	return ast.WalkContinue, nil
}

func (w *markdownWalker) codeBlock(node ast.Node) {
	var code strings.Builder
	lines := node.Lines()
	for i := range lines.Len() {
		segment := lines.At(i)
		code.Write(segment.Value(w.source))
	}
	language := ""
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		language = string(fenced.Language(w.source))
	}
	highlighted := strings.TrimRight(w.highlight(code.String(), language), "\n")

	w.blankLine()
	for line := range strings.SplitSeq(highlighted, "\n") {
		w.write(w.prefixLines("  " + line))
		w.endLine()
	}
	w.blankLine()
}
