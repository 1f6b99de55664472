package ffmeta

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode_Chapters(t *testing.T) {
	got := string(Encode("video_P1", []Chapter{
		{Title: "Bells = Whistles", DurationSec: 12.3456},
		{Title: "Second; #2", DurationSec: 1},
	}))

	want := `;FFMETADATA1
title=video_P1

[CHAPTER]
TIMEBASE=1/1000
START=0
END=12345
title=Bells \= Whistles

[CHAPTER]
TIMEBASE=1/1000
START=12346
END=13346
title=Second\; \#2
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FFMETADATA 不符合预期 (-want +got):\n%s", diff)
	}
}

func TestEncode_EmptyIsHeaderOnly(t *testing.T) {
	if got := string(Encode("", nil)); got != ";FFMETADATA1\n" {
		t.Fatalf("期望只有头部，实际 %q", got)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	ch := []Chapter{{Title: "a", DurationSec: 3}}
	if string(Encode("x", ch)) != string(Encode("x", ch)) {
		t.Fatalf("相同输入应产生相同输出")
	}
}

func TestEscape(t *testing.T) {
	cases := map[string]string{
		`a\b`:        `a\\b`,
		"line1\nl2":  "line1\\\nl2",
		"crlf\r\nx":  "crlf\\\nx",
		"plain text": "plain text",
	}
	for in, want := range cases {
		if got := Escape(in); got != want {
			t.Fatalf("Escape(%q)=%q，期望 %q", in, got, want)
		}
	}
}

func TestTicks(t *testing.T) {
	if Ticks(-1) != 0 || Ticks(0.0009) != 0 || Ticks(2.5) != 2500 {
		t.Fatalf("Ticks 换算不符合预期")
	}
}
