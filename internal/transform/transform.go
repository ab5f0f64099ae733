// Package transform converts the note service's structural markup into
// canonical Markdown.
//
// The dialect is a constrained XML-like format: <text indent="n">
// paragraph containers, <background> wrappers, simple inline emphasis
// tags, HTML entities, and several attachment embedding syntaxes.
// Transform is idempotent: its own output contains no markup tokens,
// so a second pass only re-runs whitespace normalization, which is a
// no-op on already-normalized text.
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/models"
)

var (
	textBlockRe = regexp.MustCompile(`(?s)<text([^>]*)>(.*?)</text>`)
	indentRe    = regexp.MustCompile(`indent\s*=\s*"?(\d+)"?`)

	backgroundRe = regexp.MustCompile(`(?s)</?background[^>]*>`)

	imgRe      = regexp.MustCompile(`(?i)<img[^>]*fileid=["']?([\w.\-]+)["']?[^>]*/?>`)
	soundRe    = regexp.MustCompile(`(?i)<sound[^>]*fileid=["']?([\w.\-]+)["']?[^>]*/?>`)
	fileIDRe   = regexp.MustCompile(`<fileId:([\w.\-]+)\s*/?>`)
	legacyRe   = regexp.MustCompile(`☺\s*([\w.\-]+)`)
	assetTok   = regexp.MustCompile(`\{\{asset:([\w.\-]+)\}\}`)
	anyTagRe   = regexp.MustCompile(`</?[A-Za-z][^>]*>`)
	entityRe   = regexp.MustCompile(`&(nbsp|lt|gt|amp|quot);`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// hasMarkup reports whether s still contains any dialect token. The
// transformer's output never does: literal < and & in plain runs come
// out backslash-escaped, so stripping escape pairs first keeps already
// transformed text from re-triggering the markup path.
func hasMarkup(s string) bool {
	stripped := strings.NewReplacer(`\<`, "", `\&`, "").Replace(s)
	return anyTagRe.MatchString(stripped) ||
		entityRe.MatchString(stripped) ||
		fileIDRe.MatchString(stripped) ||
		legacyRe.MatchString(stripped)
}

// ExtractRefs returns the ordered, deduplicated attachment references
// embedded in raw content. Kind is what the markup declares; the
// resolver will not trust it.
func ExtractRefs(raw string) []models.AttachmentRef {
	seen := make(map[string]struct{})
	var out []models.AttachmentRef
	add := func(id string, kind models.AttachmentKind) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, models.AttachmentRef{ID: id, DeclaredKind: kind})
	}

	type pattern struct {
		re   *regexp.Regexp
		kind models.AttachmentKind
	}
	// Scan in embed order so references keep document position.
	patterns := []pattern{
		{soundRe, models.KindAudio},
		{imgRe, models.KindImage},
		{fileIDRe, models.KindImage},
		{legacyRe, models.KindImage},
	}
	type hit struct {
		pos  int
		id   string
		kind models.AttachmentKind
	}
	var hits []hit
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(raw, -1) {
			hits = append(hits, hit{pos: m[0], id: raw[m[2]:m[3]], kind: p.kind})
		}
	}
	// Stable insertion by position; sound matches were collected first
	// so an id embedded as <sound> keeps its audio declaration.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	for _, h := range hits {
		add(h.id, h.kind)
	}
	return out
}

// Transform converts raw note markup to canonical Markdown. Attachment
// embeds become {{asset:<id>}} tokens finalized by FinalizeEmbeds once
// resolution has produced local paths.
//
// A markup-free input (including Transform's own output) passes
// through untouched except for blank-line collapsing.
func Transform(raw string) (string, error) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	if !hasMarkup(s) {
		return collapseBlank(s), nil
	}

	// Attachment embeds first: each becomes a token on its own line.
	for _, re := range []*regexp.Regexp{soundRe, imgRe} {
		s = re.ReplaceAllString(s, "\n{{asset:$1}}\n")
	}
	s = fileIDRe.ReplaceAllString(s, "\n{{asset:$1}}\n")
	s = legacyRe.ReplaceAllString(s, "\n{{asset:$1}}\n")

	s = backgroundRe.ReplaceAllString(s, "")

	var b strings.Builder
	last := 0
	for _, m := range textBlockRe.FindAllStringSubmatchIndex(s, -1) {
		if err := renderPlain(&b, s[last:m[0]]); err != nil {
			return "", err
		}
		attrs := s[m[2]:m[3]]
		inner := s[m[4]:m[5]]
		indent := 0
		if am := indentRe.FindStringSubmatch(attrs); am != nil {
			indent, _ = strconv.Atoi(am[1])
		}
		if err := renderBlock(&b, inner, indent); err != nil {
			return "", err
		}
		last = m[1]
	}
	tail := s[last:]
	if strings.Contains(tail, "<text") {
		return "", fmt.Errorf("transform: unterminated <text> block: %w", apperr.ErrTransform)
	}
	if err := renderPlain(&b, tail); err != nil {
		return "", err
	}

	return collapseBlank(b.String()), nil
}

// renderBlock renders a <text> container. A positive indent attribute
// maps to Markdown blockquote nesting of the same depth.
func renderBlock(b *strings.Builder, inner string, indent int) error {
	var inb strings.Builder
	if err := renderPlain(&inb, inner); err != nil {
		return err
	}
	content := strings.Trim(inb.String(), "\n")
	if content == "" {
		return nil
	}
	prefix := strings.Repeat("> ", indent)
	b.WriteByte('\n')
	for _, line := range strings.Split(content, "\n") {
		if line == "" && prefix == "" {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(strings.TrimRight(prefix+line, " "))
		b.WriteByte('\n')
	}
	return nil
}

// renderPlain renders inline content: emphasis tags become Markdown
// markers, remaining tags are stripped, entities are decoded, and
// Markdown-significant characters in plain runs are escaped.
func renderPlain(b *strings.Builder, s string) error {
	for _, line := range strings.SplitAfter(s, "\n") {
		b.WriteString(renderInline(line, true))
	}
	return nil
}

var emphasisRe = regexp.MustCompile(`(?s)<(b|strong|i|em|u|del|strike)>(.*?)</(?:b|strong|i|em|u|del|strike)>`)

func renderInline(line string, atLineStart bool) string {
	var out strings.Builder
	last := 0
	for _, m := range emphasisRe.FindAllStringSubmatchIndex(line, -1) {
		if m[0] < last {
			continue
		}
		out.WriteString(escapeText(line[last:m[0]], atLineStart && last == 0))
		tag := line[m[2]:m[3]]
		inner := renderInline(line[m[4]:m[5]], false)
		switch tag {
		case "b", "strong":
			out.WriteString("**" + inner + "**")
		case "i", "em":
			out.WriteString("*" + inner + "*")
		case "del", "strike":
			out.WriteString("~~" + inner + "~~")
		default: // u: Markdown has no underline, keep the text
			out.WriteString(inner)
		}
		last = m[1]
	}
	out.WriteString(escapeText(line[last:], atLineStart && last == 0))
	return out.String()
}

var entityMap = map[string]string{
	"nbsp": " ", "lt": "<", "gt": ">", "amp": "&", "quot": `"`,
}

// escapeText decodes entities, strips leftover tags, and escapes
// characters that would otherwise read as accidental Markdown
// formatting. Asset tokens pass through untouched.
func escapeText(s string, atLineStart bool) string {
	s = anyTagRe.ReplaceAllString(s, "")
	s = entityRe.ReplaceAllStringFunc(s, func(e string) string {
		return entityMap[e[1:len(e)-1]]
	})

	var out strings.Builder
	lineStart := atLineStart
	i := 0
	for i < len(s) {
		// Leave {{asset:...}} tokens intact.
		if loc := assetTok.FindStringIndex(s[i:]); loc != nil && loc[0] == 0 {
			out.WriteString(s[i : i+loc[1]])
			i += loc[1]
			lineStart = false
			continue
		}
		c := s[i]
		switch c {
		case '\n':
			out.WriteByte(c)
			lineStart = true
			i++
			continue
		case '\\', '*', '_', '`', '<', '&':
			out.WriteByte('\\')
			out.WriteByte(c)
		case '#', '>', '-', '+':
			if lineStart {
				out.WriteByte('\\')
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
		if c != ' ' && c != '\t' {
			lineStart = false
		}
		i++
	}
	return out.String()
}

// collapseBlank reduces runs of blank lines to a single blank line and
// trims leading/trailing blank space down to one trailing newline.
func collapseBlank(s string) string {
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	s = strings.Trim(s, "\n")
	if s == "" {
		return ""
	}
	return s + "\n"
}

// MissingAssetMarker is left in place of an embed whose attachment
// could not be fetched.
func MissingAssetMarker(id string) string {
	return "*(missing attachment: " + id + ")*"
}

// FinalizeEmbeds replaces {{asset:<id>}} tokens with Markdown embeds
// pointing at resolved local paths. Tokens whose id has no resolved
// path become missing-asset markers.
func FinalizeEmbeds(md string, resolved map[string]string) string {
	return assetTok.ReplaceAllStringFunc(md, func(tok string) string {
		id := assetTok.FindStringSubmatch(tok)[1]
		path, ok := resolved[id]
		if !ok {
			return MissingAssetMarker(id)
		}
		return "![](" + path + ")"
	})
}

// Fence wraps content that could not be transformed in a fenced block
// so nothing is lost; reported as a partial success upstream.
func Fence(raw string) string {
	fence := "```"
	for strings.Contains(raw, fence) {
		fence += "`"
	}
	return fence + "\n" + strings.Trim(raw, "\n") + "\n" + fence + "\n"
}
