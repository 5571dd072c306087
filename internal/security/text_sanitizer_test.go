package security

import (
	"strings"
	"testing"
)

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizerService = NewTextSanitizer(0)
}

func TestSanitize_StripsTags(t *testing.T) {
	s := NewTextSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "오늘도 좋은 하루", "오늘도 좋은 하루"},
		{"script除去", `<script>alert(1)</script>hello`, "hello"},
		{"インラインタグ", `<b>bold</b> and <a href="x">link</a>`, "bold and link"},
		{"イベント属性", `<img src=x onerror=alert(1)>caption`, "caption"},
		{"エンティティは文字に戻す", "Tom &amp; Jerry", "Tom & Jerry"},
		{"前後の空白", "  spaced  \n", "spaced"},
		{"制御文字", "a\x00b\x07c", "abc"},
		{"改行は保持", "line1\nline2", "line1\nline2"},
		{"空", "", ""},
		{"タグのみ", "<p></p>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	s := NewTextSanitizer(5)
	if got := s.Sanitize("가나다라마바사"); got != "가나다라마" {
		t.Errorf("Sanitize = %q, want 5 runes", got)
	}
}

func TestSanitize_DefaultLimit(t *testing.T) {
	s := NewTextSanitizer(0)
	got := s.Sanitize(strings.Repeat("a", DefaultMaxRunes+10))
	if len(got) != DefaultMaxRunes {
		t.Errorf("len = %d, want %d", len(got), DefaultMaxRunes)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	s := NewTextSanitizer(0)
	input := `<div>hello <i>world</i></div> &lt;3`
	once := s.Sanitize(input)
	// エンティティを戻した結果の"<3"はタグとして解釈されない
	if twice := s.Sanitize(once); twice != once {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}
