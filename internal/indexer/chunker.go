package indexer

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	minChunkSize = 50
	maxChunkSize = 700 // Max runes per chunk (targets ~450 tokens for 512-token embedding model)
)

// GoldmarkChunker splits markdown into heading sections using the goldmark AST.
type GoldmarkChunker struct {
	parser goldmark.Markdown
}

// NewGoldmarkChunker creates a new goldmark chunker.
func NewGoldmarkChunker() *GoldmarkChunker {
	return &GoldmarkChunker{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// ChunkMarkdown returns the document title and its sections. Each heading
// starts a new section; sections below minChunkSize runes are merged into the
// next one and sections above maxChunkSize are split.
func (c *GoldmarkChunker) ChunkMarkdown(content []byte, filename string) (title string, chunks []Chunk) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return extractTitleFromFilename(filename), nil
	}

	doc := c.parser.Parser().Parse(text.NewReader(content))
	title = extractTitle(doc, content, filename)

	var sections []Chunk
	start, heading := 0, ""
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		pos := nodeStart(h, content)
		if pos < 0 {
			continue
		}
		sections = appendSection(sections, heading, content[start:pos])
		start, heading = pos, headingText(h, content)
	}
	sections = appendSection(sections, heading, content[start:])

	chunks = applySizeConstraints(sections)
	return title, chunks
}

func appendSection(sections []Chunk, heading string, src []byte) []Chunk {
	t := strings.TrimSpace(string(src))
	if t == "" {
		return sections
	}
	return append(sections, Chunk{Heading: heading, Text: t})
}

// nodeStart returns the offset of the line holding n's first segment, or -1
// when n has no source lines.
func nodeStart(n ast.Node, content []byte) int {
	lines := n.Lines()
	if lines == nil || lines.Len() == 0 {
		return -1
	}
	pos := lines.At(0).Start
	for pos > 0 && content[pos-1] != '\n' {
		pos--
	}
	return pos
}

// extractTitle returns the first level-1 heading, else the first level-2
// heading, else a title derived from the filename.
func extractTitle(doc ast.Node, content []byte, filename string) string {
	var firstH1, firstH2 string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		switch {
		case h.Level == 1 && firstH1 == "":
			firstH1 = headingText(h, content)
			return ast.WalkStop, nil
		case h.Level == 2 && firstH2 == "":
			firstH2 = headingText(h, content)
		}
		return ast.WalkSkipChildren, nil
	})

	switch {
	case firstH1 != "":
		return firstH1
	case firstH2 != "":
		return firstH2
	}
	return extractTitleFromFilename(filename)
}

// extractTitleFromFilename drops the extension and capitalises each word.
func extractTitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	words := strings.Fields(name)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func headingText(h *ast.Heading, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// applySizeConstraints merges undersized sections forward and splits
// oversized ones, then renumbers. Sizes are in runes.
func applySizeConstraints(sections []Chunk) []Chunk {
	var result []Chunk
	for i := 0; i < len(sections); i++ {
		current := sections[i]
		for utf8.RuneCountInString(current.Text) < minChunkSize && i+1 < len(sections) {
			merged := current.Text + "\n\n" + sections[i+1].Text
			if utf8.RuneCountInString(merged) > maxChunkSize {
				break
			}
			current.Text = merged
			i++
		}
		result = append(result, splitChunk(current)...)
	}

	for i := range result {
		result[i].Index = i
	}
	return result
}

// splitChunk cuts an oversized chunk at the last paragraph break, line break
// or sentence end inside each window, falling back to a hard cut.
func splitChunk(chunk Chunk) []Chunk {
	runes := []rune(chunk.Text)
	if len(runes) <= maxChunkSize {
		return []Chunk{chunk}
	}

	var splits []Chunk
	for start := 0; start < len(runes); {
		end := min(start+maxChunkSize, len(runes))
		cut := end
		if end < len(runes) {
			window := string(runes[start:end])
			for _, sep := range []string{"\n\n", "\n", ". "} {
				if idx := strings.LastIndex(window, sep); idx > 0 {
					cut = start + utf8.RuneCountInString(window[:idx+len(sep)])
					break
				}
			}
		}
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			splits = append(splits, Chunk{Heading: chunk.Heading, Text: piece})
		}
		start = cut
	}
	return splits
}
