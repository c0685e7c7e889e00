package summarizer

import (
	"strings"
	"unicode/utf8"
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

// Chunk splits text into pieces of at most budget characters, in order.
// Paragraphs (blank-line separated) are packed greedily; a paragraph longer
// than budget is split into sentences on ". " and those are packed instead.
// A single sentence longer than budget is emitted alone, over budget.
func Chunk(text string, budget int) []string {
	if budget <= 0 {
		budget = 1
	}
	p := &packer{budget: budget}

	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if p.fits(para, paragraphSep) {
			p.add(para, paragraphSep)
			continue
		}
		p.flush()
		if runeLen(para) <= budget {
			p.add(para, paragraphSep)
			continue
		}
		for _, sentence := range splitSentences(para) {
			if !p.fits(sentence, sentenceSep) {
				p.flush()
			}
			p.add(sentence, sentenceSep)
		}
	}
	p.flush()

	return p.out
}

// packer accumulates pieces into the current chunk.
type packer struct {
	budget int
	cur    strings.Builder
	size   int // runes in cur
	out    []string
}

func (p *packer) fits(piece, sep string) bool {
	n := p.size + runeLen(piece)
	if p.size > 0 {
		n += len(sep)
	}
	return n <= p.budget
}

func (p *packer) add(piece, sep string) {
	if p.size > 0 {
		p.cur.WriteString(sep)
		p.size += len(sep)
	}
	p.cur.WriteString(piece)
	p.size += runeLen(piece)
}

func (p *packer) flush() {
	if s := strings.TrimSpace(p.cur.String()); s != "" {
		p.out = append(p.out, s)
	}
	p.cur.Reset()
	p.size = 0
}

// splitSentences splits on ". ", keeping the period with its sentence.
func splitSentences(para string) []string {
	parts := strings.SplitAfter(para, ". ")
	out := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
