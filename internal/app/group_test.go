package app

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/vstitch/internal/domain"
)

func TestGroupBySession_OrderAndMissing(t *testing.T) {
	subs := []domain.Submission{
		{ID: "3", Title: "c", Session: "P2"},
		{ID: "1", Title: "a", Session: "P1"},
		{ID: "9", Title: "missing", Session: "P2"},
		{ID: "2", Title: "b", Session: "P2"},
	}
	clips := []domain.Clip{
		{RelPath: "nime2025_1.mp4", ID: "1"},
		{RelPath: "nime2025_2.mp4", ID: "2"},
		{RelPath: "nime2025_3.mkv", ID: "3"},
		{RelPath: "nime2025_77.mp4", ID: "77"},
	}

	items, orphans := GroupBySession(subs, clips, "video_")

	type entry struct {
		ID      domain.ID
		ClipIdx int
	}
	type item struct {
		Session, Name string
		Entries       []entry
	}
	got := make([]item, 0, len(items))
	for _, it := range items {
		x := item{Session: it.Session, Name: it.Name}
		for _, e := range it.Entries {
			x.Entries = append(x.Entries, entry{e.Submission.ID, e.ClipIdx})
		}
		got = append(got, x)
	}
	want := []item{
		{Session: "P1", Name: "video_P1", Entries: []entry{{"1", 0}}},
		// 数据表顺序：3, 9, 2
		{Session: "P2", Name: "video_P2", Entries: []entry{{"3", 2}, {"9", -1}, {"2", 1}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("分组不符合预期 (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, orphans); diff != "" {
		t.Fatalf("orphans 不符合预期 (-want +got):\n%s", diff)
	}
}

func TestGroupBySession_IDMatchIsCaseInsensitive(t *testing.T) {
	subs := []domain.Submission{{ID: "abc", Session: "S"}}
	clips := []domain.Clip{{RelPath: "nime2025_ABC.mp4", ID: "ABC"}}

	items, orphans := GroupBySession(subs, clips, "")
	if len(orphans) != 0 {
		t.Fatalf("不期望 orphans：%v", orphans)
	}
	if items[0].Entries[0].ClipIdx != 0 {
		t.Fatalf("期望匹配到 clip 0，实际 %d", items[0].Entries[0].ClipIdx)
	}
}

func TestGroupBySession_NameCollision(t *testing.T) {
	subs := []domain.Submission{
		{ID: "1", Session: "Paper 1"},
		{ID: "2", Session: "Paper/1"},
		{ID: "3", Session: ""},
		// 清洗后恰好等于上面追加后缀得到的名字。
		{ID: "4", Session: "Paper_1_2"},
	}
	items, _ := GroupBySession(subs, nil, "video_")

	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	want := []string{"video_unassigned", "video_Paper_1", "video_Paper_1_2", "video_Paper_1_2_2"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("名称不符合预期 (-want +got):\n%s", diff)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"P1":          "P1",
		" Demo A ":    "Demo_A",
		"../etc":      "_etc",
		"":            UnassignedSession,
		"...":         UnassignedSession,
		"Séance 2":    "S_ance_2",
		"Music.Notes": "Music.Notes",
	}
	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Fatalf("SanitizeName(%q)=%q，期望 %q", in, got, want)
		}
	}
}
