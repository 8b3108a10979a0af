package sanitize

import (
	"strings"
	"testing"
)

func TestClean_InternalWhitespacePreserved(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldTitle, "Hello  World  ")
	if got != "Hello  World" {
		t.Errorf("Clean() = %q, want %q", got, "Hello  World")
	}
}

func TestClean_TruncatesToFieldMax(t *testing.T) {
	t.Parallel()

	s := New()

	in := strings.Repeat("a", 80)
	got := s.Clean(FieldBadge, in)
	if len(got) != 50 {
		t.Errorf("len(Clean()) = %d, want 50", len(got))
	}
}

func TestClean_TruncateDoesNotSplitRune(t *testing.T) {
	t.Parallel()

	// 49 ASCII bytes followed by a 3-byte rune: the 50-byte cut lands
	// mid-rune and must back off rather than emit a partial sequence.
	s := New()

	in := strings.Repeat("a", 49) + "日日"
	got := s.Clean(FieldBadge, in)
	if got != strings.Repeat("a", 49) {
		t.Errorf("Clean() = %q, want 49 a's", got)
	}
}

func TestClean_StripsControlCharacters(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldTitle, "Sum\x00mer \x07Sale\x1b")
	if got != "Summer Sale" {
		t.Errorf("Clean() = %q, want %q", got, "Summer Sale")
	}
}

func TestClean_KeepsNormalWhitespace(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldDescription, "line one\nline\ttwo")
	if got != "line one\nline\ttwo" {
		t.Errorf("Clean() = %q, want newline and tab preserved", got)
	}
}

func TestClean_DangerousConstructsDegraded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"script tag", `<script>alert(1)</script>`},
		{"event handler", `<img onerror="steal()">`},
		{"javascript uri", `<a href="javascript:void(0)">x</a>`},
		{"data uri", `<a href="data:text/html,x">x</a>`},
		{"vbscript uri", `vbscript:msgbox("x")`},
		{"css expression", `width: expression(alert(1))`},
		{"css url", `background: url("evil")`},
		{"css import", `@import "evil.css"`},
	}

	s := New()

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := s.Clean(FieldTitle, tt.input)
			if strings.ContainsAny(got, `<>"'`) {
				t.Errorf("Clean(%q) = %q, still contains markup characters", tt.input, got)
			}
		})
	}
}

func TestClean_RichTextKeepsAllowedTags(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldDescription, "<p>Soft <b>cotton</b> <span>tee</span></p>")
	want := "<p>Soft <b>cotton</b> tee</p>"
	if got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestClean_RichTextDropsTagWithAttributes(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldDescription, `before <b class=x>bold</b> after`)
	want := "before bold</b> after"
	if got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestClean_PlainFieldStripsAllMarkup(t *testing.T) {
	t.Parallel()

	s := New()

	got := s.Clean(FieldTitle, "<p>Linen <em>shirt</em></p>")
	if got != "Linen shirt" {
		t.Errorf("Clean() = %q, want %q", got, "Linen shirt")
	}
}

func TestClean_UnknownFieldUsesDefaultRule(t *testing.T) {
	t.Parallel()

	s := New()

	in := strings.Repeat("x", DefaultRule.MaxLength+100)
	got := s.Clean("no_such_field", in)
	if len(got) != DefaultRule.MaxLength {
		t.Errorf("len(Clean()) = %d, want %d", len(got), DefaultRule.MaxLength)
	}
}

func TestDegrades(t *testing.T) {
	t.Parallel()

	if Degrades("a perfectly normal description") {
		t.Error("Degrades() = true for benign input")
	}
	if !Degrades("<script>x</script>") {
		t.Error("Degrades() = false for script tag")
	}
}
