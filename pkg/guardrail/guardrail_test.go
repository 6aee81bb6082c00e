package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

func guardrailConfig() config.GuardrailConfig {
	return config.GuardrailConfig{
		OverlapThreshold:    0.3,
		RejectFraction:      0.5,
		ConfidenceFloor:     0.4,
		LowConfidenceCutoff: 0.3,
		RelevanceWeight:     0.3,
		SupportWeight:       0.5,
		CalcWeight:          0.2,
	}
}

func hit(doc string, ordinal int, score float64, text string) model.ScoredChunk {
	return model.ScoredChunk{
		Chunk:      model.Chunk{ID: "c", DocumentID: doc, Ordinal: ordinal, Text: text},
		Score:      score,
		DocumentID: doc,
	}
}

func TestValidate_NumericMatchGetsComputationRef(t *testing.T) {
	v := NewValidator(guardrailConfig())
	comps := []model.ComputationRef{
		{Kind: model.TaskComputeRatios, Name: "current_ratio", Value: 2.5, Defined: true},
	}

	report := v.Validate("The current ratio is 2.5.", nil, comps, 1)
	require.Len(t, report.Answer.Computations, 1)
	assert.Equal(t, "current_ratio", report.Answer.Computations[0].Name)
	assert.False(t, report.Rejected)
}

func TestValidate_PercentMatch(t *testing.T) {
	v := NewValidator(guardrailConfig())
	comps := []model.ComputationRef{
		{Kind: model.TaskComputeRatios, Name: "net_margin", Value: 0.12, Defined: true},
	}

	// 12% 与 0.12 在换算后匹配
	report := v.Validate("Net margin stands at 12%.", nil, comps, 1)
	assert.Len(t, report.Answer.Computations, 1)
}

func TestValidate_OverlapGetsCitation(t *testing.T) {
	v := NewValidator(guardrailConfig())
	hits := []model.ScoredChunk{
		hit("doc1", 3, 0.9, "The company reported strong revenue growth in the fourth quarter driven by cloud services."),
	}

	report := v.Validate("The company reported strong revenue growth in the fourth quarter.", hits, nil, 1)
	require.Len(t, report.Answer.Citations, 1)
	c := report.Answer.Citations[0]
	assert.Equal(t, "doc1", c.DocumentID)
	assert.Equal(t, 3, c.Ordinal)
	assert.NotEmpty(t, c.QuotedSpan)
	assert.InDelta(t, 0.9, c.RelevanceScore, 1e-9)
}

func TestValidate_ConfidenceRange(t *testing.T) {
	v := NewValidator(guardrailConfig())
	drafts := []string{
		"",
		"Total nonsense with no support whatsoever.",
		"The current ratio is 2.5. Revenue grew strongly this year.",
	}
	hits := []model.ScoredChunk{hit("doc1", 0, 0.8, "revenue grew strongly this year")}
	comps := []model.ComputationRef{{Kind: model.TaskComputeRatios, Name: "current_ratio", Value: 2.5, Defined: true}}

	for _, draft := range drafts {
		report := v.Validate(draft, hits, comps, 1)
		assert.GreaterOrEqual(t, report.Answer.Confidence, 0.0, "draft %q", draft)
		assert.LessOrEqual(t, report.Answer.Confidence, 1.0, "draft %q", draft)
	}
}

func TestValidate_ZeroEvidenceLowConfidence(t *testing.T) {
	v := NewValidator(guardrailConfig())

	report := v.Validate("Unsupported claim about nothing relevant. Second invented statement here.", nil, nil, 0)
	assert.Less(t, report.Answer.Confidence, 0.3)
	assert.True(t, report.Answer.LowConfidence)
	assert.Empty(t, report.Answer.Citations)
	assert.Empty(t, report.Answer.Computations)
}

func TestValidate_BlankDraftRejectedAsUnsupported(t *testing.T) {
	v := NewValidator(guardrailConfig())
	comps := []model.ComputationRef{{Kind: model.TaskComputeRatios, Name: "current_ratio", Value: 2.5, Defined: true}}

	// 空白输出分不出任何句子，按零支撑处理而不是默认通过
	for _, draft := range []string{"", "   ", "\n\n"} {
		report := v.Validate(draft, nil, comps, 1)
		assert.True(t, report.Rejected, "draft %q", draft)
		assert.True(t, report.Answer.LowConfidence, "draft %q", draft)
		assert.Less(t, report.Answer.Confidence, 0.3, "draft %q", draft)
		assert.Zero(t, report.SupportedFraction, "draft %q", draft)
	}
}

func TestValidate_RejectsMostlyUnsupportedDraft(t *testing.T) {
	v := NewValidator(guardrailConfig())
	comps := []model.ComputationRef{{Kind: model.TaskComputeRatios, Name: "current_ratio", Value: 2.5, Defined: true}}

	// 三句中只有一句被支撑，无支撑占比 2/3 > 0.5
	draft := "The ratio is 2.5. Martians bought the company. Profits will quadruple by magic."
	report := v.Validate(draft, nil, comps, 1)
	assert.True(t, report.Rejected)
	assert.True(t, v.NeedsRegeneration(report))
	assert.NotEmpty(t, v.Feedback(report))
}

func TestValidate_SupportedDraftPasses(t *testing.T) {
	v := NewValidator(guardrailConfig())
	hits := []model.ScoredChunk{
		hit("doc1", 0, 0.95, "quarterly revenue increased to 1.2 million dollars on services demand"),
	}
	comps := []model.ComputationRef{{Kind: model.TaskComputeRatios, Name: "current_ratio", Value: 2.5, Defined: true}}

	draft := "Quarterly revenue increased to 1.2 million dollars. The current ratio is 2.5."
	report := v.Validate(draft, hits, comps, 1)
	assert.False(t, report.Rejected)
	assert.False(t, v.NeedsRegeneration(report))
	assert.InDelta(t, 1.0, report.SupportedFraction, 1e-9)
}

func TestBestEffort_ForcesLowConfidence(t *testing.T) {
	v := NewValidator(guardrailConfig())
	report := &Report{Answer: model.Answer{Confidence: 0.8}}

	a := v.BestEffort(report)
	assert.True(t, a.LowConfidence)
	assert.Less(t, a.Confidence, 0.3)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First sentence. Second one! Third?\nFourth line without punctuation")
	assert.Len(t, got, 4)
	assert.Equal(t, "First sentence.", got[0])
}

func TestSortCitations(t *testing.T) {
	cites := []model.Citation{
		{DocumentID: "b", Ordinal: 1},
		{DocumentID: "a", Ordinal: 2},
		{DocumentID: "a", Ordinal: 0},
	}
	SortCitations(cites)
	assert.Equal(t, "a", cites[0].DocumentID)
	assert.Equal(t, 0, cites[0].Ordinal)
	assert.Equal(t, "b", cites[2].DocumentID)
}
