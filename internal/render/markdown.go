// ABOUTME: Converts assistant markdown into plain terminal text
// ABOUTME: Walks the goldmark AST; emphasis and code become colour, structure becomes indentation

package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	md = goldmark.New()

	headingStyle = color.New(color.Bold, color.Underline)
	strongStyle  = color.New(color.Bold)
	emStyle      = color.New(color.Italic)
	codeStyle    = color.New(color.FgYellow)
	linkStyle    = color.New(color.FgBlue, color.Underline)
	quoteStyle   = color.New(color.FgHiBlack)
)

const bullet = "• "

// Markdown renders src for a terminal. Block structure is kept with line
// breaks and indentation; inline markup is expressed with colour only, so
// with colour disabled the result is plain text.
func Markdown(src string) string {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))
	r := &mdRenderer{src: source}
	return strings.Join(r.blocks(doc, true), "\n")
}

type mdRenderer struct {
	src []byte
}

// blocks renders the block children of parent. Loose containers separate
// their blocks with a blank line.
func (r *mdRenderer) blocks(parent ast.Node, loose bool) []string {
	var out []string
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		lines := r.block(c)
		if len(lines) == 0 {
			continue
		}
		if len(out) > 0 && loose {
			out = append(out, "")
		}
		out = append(out, lines...)
	}
	return out
}

func (r *mdRenderer) block(n ast.Node) []string {
	switch n := n.(type) {
	case *ast.Heading:
		return []string{headingStyle.Sprint(r.inline(n))}

	case *ast.Paragraph, *ast.TextBlock:
		return strings.Split(strings.TrimRight(r.inline(n), " \n"), "\n")

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var out []string
		for _, line := range r.rawLines(n) {
			out = append(out, "    "+codeStyle.Sprint(line))
		}
		return out

	case *ast.HTMLBlock:
		return r.rawLines(n)

	case *ast.List:
		return r.list(n)

	case *ast.Blockquote:
		inner := r.blocks(n, true)
		out := make([]string, len(inner))
		for i, line := range inner {
			out[i] = quoteStyle.Sprint("│ ") + line
		}
		return out

	case *ast.ThematicBreak:
		return []string{quoteStyle.Sprint(strings.Repeat("─", 24))}
	}
	return r.blocks(n, true)
}

func (r *mdRenderer) list(l *ast.List) []string {
	var out []string
	i := 0
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := bullet
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", l.Start+i)
		}
		pad := strings.Repeat(" ", len([]rune(marker)))

		inner := r.blocks(item, !l.IsTight)
		if len(inner) == 0 {
			inner = []string{""}
		}
		if i > 0 && !l.IsTight {
			out = append(out, "")
		}
		for j, line := range inner {
			switch {
			case j == 0:
				out = append(out, marker+line)
			case line == "":
				out = append(out, "")
			default:
				out = append(out, pad+line)
			}
		}
		i++
	}
	return out
}

// rawLines returns the literal source lines of a block without line endings.
func (r *mdRenderer) rawLines(n ast.Node) []string {
	lines := n.Lines()
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(r.src)), "\r\n"))
	}
	return out
}

func (r *mdRenderer) inline(parent ast.Node) string {
	var b strings.Builder
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(r.src))
			switch {
			case n.HardLineBreak():
				b.WriteByte('\n')
			case n.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(n.Value)
		case *ast.CodeSpan:
			b.WriteString(codeStyle.Sprint(r.inline(n)))
		case *ast.Emphasis:
			if n.Level >= 2 {
				b.WriteString(strongStyle.Sprint(r.inline(n)))
			} else {
				b.WriteString(emStyle.Sprint(r.inline(n)))
			}
		case *ast.Link:
			label := r.inline(n)
			dest := string(n.Destination)
			b.WriteString(linkStyle.Sprint(label))
			if dest != "" && dest != label {
				b.WriteString(" (" + dest + ")")
			}
		case *ast.AutoLink:
			b.WriteString(linkStyle.Sprint(string(n.URL(r.src))))
		case *ast.Image:
			b.WriteString("[image: " + r.inline(n) + "]")
		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				b.Write(seg.Value(r.src))
			}
		default:
			b.WriteString(r.inline(n))
		}
	}
	return b.String()
}
