package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Root:       "/abs/path",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Session: "P2", Status: StatusSkipped},
			{Session: "", Status: StatusFailed}, // config/unmatched 等合成项
			{Session: "P1", Status: StatusProcessed, Clips: []ClipResult{
				{ID: "1", Status: ClipStatusProcessed},
				{ID: "2", Status: ClipStatusFailed},
				{ID: "3", Status: ClipStatusMissing},
			}},
			{Session: "", Status: StatusUnmatched, Clips: []ClipResult{
				{Src: "videos/inputs/bad.mp4", Status: ClipStatusUnmatched},
			}},
		},
	}

	r.Finalize()

	// session=="" 必须排在最后；其内部顺序保持稳定（SliceStable）。
	got := []string{r.Items[0].Session, r.Items[1].Session, r.Items[2].Session, r.Items[3].Session}
	if got[0] != "P1" || got[1] != "P2" || got[2] != "" || got[3] != "" {
		t.Fatalf("items 排序不符合契约：%v", got)
	}
	if r.Items[2].Status != StatusFailed || r.Items[3].Status != StatusUnmatched {
		t.Fatalf("合成条目的相对顺序被打乱：%+v", r.Items[2:])
	}
	s := r.Summary
	if s.Processed != 1 || s.Skipped != 1 || s.Failed != 1 || s.Unmatched != 1 || s.ClipFailed != 1 || s.ClipMissing != 1 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	if r.OK() {
		t.Fatalf("存在 failed/unmatched 时 OK() 应为 false")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunReport_MarshalJSON_NilSlicesAsEmpty(t *testing.T) {
	r := RunReport{Items: []ItemResult{{Session: "P1"}}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"clips":[]`)) {
		t.Fatalf("clips 应输出为 []：%s", string(b))
	}

	empty, err := json.Marshal(RunReport{})
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(empty, []byte(`"items":[]`)) {
		t.Fatalf("items 应输出为 []：%s", string(empty))
	}
}

func TestParseID(t *testing.T) {
	cases := map[string]bool{
		"123":        true,
		" 42 ":       true,
		"p-17_a.b":   true,
		"":           false,
		"../etc":     false,
		"a/b":        false,
		"_leading":   false,
		"with space": false,
	}
	for in, want := range cases {
		_, ok := ParseID(in)
		if ok != want {
			t.Fatalf("ParseID(%q) ok=%v，期望 %v", in, ok, want)
		}
	}
	id, _ := ParseID("AbC")
	if id.Key() != "abc" {
		t.Fatalf("Key 应为小写：%q", id.Key())
	}
}
