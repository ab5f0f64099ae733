package transform

import (
	"errors"
	"strings"
	"testing"

	"github.com/willingning/minote-sync/internal/apperr"
	"github.com/willingning/minote-sync/internal/models"
)

func mustTransform(t *testing.T, raw string) string {
	t.Helper()
	out, err := Transform(raw)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	return out
}

func TestTransform_StripsContainers(t *testing.T) {
	out := mustTransform(t, `<text>hello world</text>`)
	if out != "hello world\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_BackgroundUnwrapped(t *testing.T) {
	out := mustTransform(t, `<text><background color="yellow">marked</background></text>`)
	if out != "marked\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_IndentBecomesBlockquote(t *testing.T) {
	out := mustTransform(t, `<text indent="2">nested</text>`)
	if out != "> > nested\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_Emphasis(t *testing.T) {
	out := mustTransform(t, `<text><b>bold</b> and <i>italic</i> and <del>gone</del></text>`)
	want := "**bold** and *italic* and ~~gone~~\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestTransform_UnderlineKeepsText(t *testing.T) {
	out := mustTransform(t, `<text><u>plain</u></text>`)
	if out != "plain\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_EntitiesDecoded(t *testing.T) {
	// Decoded ampersands come out escaped so they can never re-form
	// an entity on a later pass.
	out := mustTransform(t, `<text>a&nbsp;b &amp; c &quot;d&quot;</text>`)
	if out != "a b \\& c \"d\"\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_EscapesMarkdownSignificantChars(t *testing.T) {
	out := mustTransform(t, "<text>2*3 and snake_case</text>")
	if out != "2\\*3 and snake\\_case\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_EscapesLineLeadingHash(t *testing.T) {
	out := mustTransform(t, "<text># not a heading</text>")
	if !strings.HasPrefix(out, "\\#") {
		t.Errorf("out = %q, want leading escaped hash", out)
	}
}

func TestTransform_CollapsesBlankRuns(t *testing.T) {
	out := mustTransform(t, "<text>a</text>\n\n\n\n<text>b</text>")
	if out != "a\n\nb\n" {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_AttachmentTokens(t *testing.T) {
	out := mustTransform(t, `<text>pic: <img fileid="123" /> voice: <sound fileid="abcdef"/></text>`)
	if !strings.Contains(out, "{{asset:123}}") || !strings.Contains(out, "{{asset:abcdef}}") {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_LegacyEmbedSyntaxes(t *testing.T) {
	out := mustTransform(t, "<text>a <fileId:42/> b ☺ xyz.9</text>")
	if !strings.Contains(out, "{{asset:42}}") || !strings.Contains(out, "{{asset:xyz.9}}") {
		t.Errorf("out = %q", out)
	}
}

func TestTransform_Idempotent(t *testing.T) {
	inputs := []string{
		`<text indent="1"><b>x</b> &lt;tag&gt; 2*2 <img fileid="77"/></text>`,
		"plain already-clean text\n\nwith a paragraph",
		"<text># line</text>\n<text>_under_</text>",
		"",
	}
	for _, raw := range inputs {
		once := mustTransform(t, raw)
		twice := mustTransform(t, once)
		if once != twice {
			t.Errorf("not idempotent for %q:\nonce  = %q\ntwice = %q", raw, once, twice)
		}
	}
}

func TestTransform_UnterminatedTextBlock(t *testing.T) {
	_, err := Transform("<text>never closed")
	if !errors.Is(err, apperr.ErrTransform) {
		t.Fatalf("err = %v, want ErrTransform", err)
	}
}

func TestExtractRefs_OrderAndDedup(t *testing.T) {
	raw := `<img fileid="a"/> text <sound fileid="b"/> again <img fileid="a"/>`
	refs := ExtractRefs(raw)
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].ID != "a" || refs[0].DeclaredKind != models.KindImage {
		t.Errorf("refs[0] = %+v", refs[0])
	}
	if refs[1].ID != "b" || refs[1].DeclaredKind != models.KindAudio {
		t.Errorf("refs[1] = %+v", refs[1])
	}
}

func TestExtractRefs_SoundDeclarationWins(t *testing.T) {
	refs := ExtractRefs(`<sound fileid="v1"/>`)
	if len(refs) != 1 || refs[0].DeclaredKind != models.KindAudio {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestFinalizeEmbeds(t *testing.T) {
	md := "see {{asset:ok}} and {{asset:gone}}\n"
	out := FinalizeEmbeds(md, map[string]string{"ok": "assets/ok.jpg"})
	if !strings.Contains(out, "![](assets/ok.jpg)") {
		t.Errorf("resolved embed missing: %q", out)
	}
	if !strings.Contains(out, MissingAssetMarker("gone")) {
		t.Errorf("missing marker absent: %q", out)
	}
}

func TestFence_GrowsPastBackticks(t *testing.T) {
	out := Fence("content with ``` inside")
	if !strings.HasPrefix(out, "````\n") {
		t.Errorf("out = %q", out)
	}
}
