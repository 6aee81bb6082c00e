package assembler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

func TestBuild_IncludesAllSections(t *testing.T) {
	a := New(12000)
	ctx := &Context{
		Retrieved: []model.ScoredChunk{
			{
				Chunk:      model.Chunk{ID: "c1", DocumentID: "doc1", Ordinal: 0, Text: "revenue was 1.2 million"},
				Score:      0.9,
				DocumentID: "doc1",
			},
		},
		CompText:     []string{"current_ratio = 2.5 (liquidity)"},
		History:      []model.Message{{Role: "user", Content: "prior question"}},
		ExplicitCtx:  "focus on fiscal year 2024",
		PartialNotes: []string{"forecast unavailable: missing series"},
	}

	out := a.Build(ctx)
	for _, want := range []string{
		"revenue was 1.2 million",
		"current_ratio = 2.5",
		"prior question",
		"focus on fiscal year 2024",
		"forecast unavailable",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Build() missing %q", want)
		}
	}
}

func TestBuild_RespectsCharBudget(t *testing.T) {
	a := New(500)
	long := strings.Repeat("financial analysis text ", 100)
	ctx := &Context{
		Retrieved: []model.ScoredChunk{
			{Chunk: model.Chunk{Text: long}, Score: 0.9, DocumentID: "doc1"},
			{Chunk: model.Chunk{Text: long}, Score: 0.8, DocumentID: "doc1"},
		},
	}

	out := a.Build(ctx)
	if len(out) > 500 {
		t.Errorf("Build() length = %d, want <= 500", len(out))
	}
}

func TestBuild_TruncatesOnRuneBoundary(t *testing.T) {
	a := New(200)
	ctx := &Context{
		Retrieved: []model.ScoredChunk{
			{Chunk: model.Chunk{Text: strings.Repeat("营收同比增长百分之二十，", 30)}, Score: 0.9, DocumentID: "doc1"},
		},
	}

	out := a.Build(ctx)
	if len(out) > 200 {
		t.Errorf("Build() length = %d, want <= 200", len(out))
	}
	if !utf8.ValidString(out) {
		t.Errorf("Build() produced invalid UTF-8 after truncation: %q", out)
	}
}

func TestBuild_DropsOldestHistoryFirst(t *testing.T) {
	a := New(400) // 历史预算 100 字符
	ctx := &Context{
		History: []model.Message{
			{Role: "user", Content: strings.Repeat("old ", 20)},
			{Role: "assistant", Content: "recent answer"},
			{Role: "user", Content: "recent question"},
		},
	}

	out := a.Build(ctx)
	if !strings.Contains(out, "recent question") || !strings.Contains(out, "recent answer") {
		t.Errorf("Build() should keep most recent history, got %q", out)
	}
	if strings.Contains(out, "old old") {
		t.Errorf("Build() should drop oldest history over budget, got %q", out)
	}
}

func TestDescribeRatioResult(t *testing.T) {
	ratios := model.RatioResult{
		"current_ratio": {Value: 2.5, Defined: true, Category: model.CategoryLiquidity},
		"net_margin":    {Defined: false, Category: model.CategoryProfitability},
	}

	lines := DescribeRatioResult(ratios, []string{"current_ratio", "net_margin", "missing"})
	if len(lines) != 2 {
		t.Fatalf("DescribeRatioResult() lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "2.5") {
		t.Errorf("line[0] = %q, want value 2.5", lines[0])
	}
	if !strings.Contains(lines[1], "undefined") {
		t.Errorf("line[1] = %q, want undefined marker", lines[1])
	}
}
