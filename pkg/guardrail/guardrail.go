package guardrail

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Validator 负责给草稿答案挂引用、算置信度，并判定是否需要重新生成
type Validator struct {
	cfg config.GuardrailConfig
}

// NewValidator 创建校验器
func NewValidator(cfg config.GuardrailConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Report 一次校验的结果
type Report struct {
	Answer            model.Answer
	Rejected          bool    // 未被证据支撑的句子过多，需要重新生成
	SupportedFraction float64 // 有引用或计算引用的句子占比
}

// Validate 校验草稿：逐句匹配计算结果与检索片段，产出带引用与置信度的答案。
// calcSuccessRatio 为计算阶段任务成功比例，无计算任务时传 1。
func (v *Validator) Validate(draft string, hits []model.ScoredChunk, comps []model.ComputationRef, calcSuccessRatio float64) *Report {
	sentences := SplitSentences(draft)

	var citations []model.Citation
	var refs []model.ComputationRef
	seenCite := map[string]bool{}
	seenComp := map[string]bool{}

	supported := 0
	for _, sent := range sentences {
		ok := false

		for _, comp := range comps {
			if sentenceMatchesComputation(sent, comp) {
				ok = true
				if !seenComp[comp.Name] {
					seenComp[comp.Name] = true
					refs = append(refs, comp)
				}
			}
		}

		best, overlap := bestChunk(sent, hits)
		if best != nil && overlap >= v.cfg.OverlapThreshold {
			ok = true
			key := fmt.Sprintf("%s#%d", best.DocumentID, best.Chunk.Ordinal)
			if !seenCite[key] {
				seenCite[key] = true
				citations = append(citations, model.Citation{
					DocumentID:     best.DocumentID,
					ChunkID:        best.Chunk.ID,
					Ordinal:        best.Chunk.Ordinal,
					RelevanceScore: best.Score,
					QuotedSpan:     quoteSpan(best.Chunk.Text),
				})
			}
		}

		if ok {
			supported++
		}
	}

	// 分不出句子的草稿（空白输出）没有任何可支撑的断言
	supportedFrac := 0.0
	if len(sentences) > 0 {
		supportedFrac = float64(supported) / float64(len(sentences))
	}

	meanRelevance := 0.0
	if len(citations) > 0 {
		for _, c := range citations {
			meanRelevance += c.RelevanceScore
		}
		meanRelevance /= float64(len(citations))
	}

	confidence := v.cfg.RelevanceWeight*meanRelevance +
		v.cfg.SupportWeight*supportedFrac +
		v.cfg.CalcWeight*calcSuccessRatio
	confidence = math.Max(0, math.Min(1, confidence))

	rejected := (1 - supportedFrac) > v.cfg.RejectFraction

	return &Report{
		Answer: model.Answer{
			Text:          draft,
			Citations:     citations,
			Computations:  refs,
			Confidence:    confidence,
			LowConfidence: confidence < v.cfg.LowConfidenceCutoff,
		},
		Rejected:          rejected,
		SupportedFraction: supportedFrac,
	}
}

// NeedsRegeneration 置信度低于硬下限或被拒绝时要求重新生成
func (v *Validator) NeedsRegeneration(r *Report) bool {
	return r.Rejected || r.Answer.Confidence < v.cfg.ConfidenceFloor
}

// Feedback 生成供二次合成使用的反馈说明
func (v *Validator) Feedback(r *Report) string {
	return fmt.Sprintf(
		"Your previous answer had only %.0f%% of its claims supported by the provided context or computed metrics. "+
			"Rewrite the answer using ONLY facts from the provided context and the computed metrics. "+
			"Do not introduce figures that are not present in the context.",
		r.SupportedFraction*100)
}

var sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]?`)

// SplitSentences 朴素分句：按 .!? 与换行切，过滤空白与过短片段
func SplitSentences(text string) []string {
	var out []string
	for _, raw := range sentenceRe.FindAllString(text, -1) {
		s := strings.TrimSpace(raw)
		if len(s) >= 3 {
			out = append(out, s)
		}
	}
	return out
}

var numberRe = regexp.MustCompile(`-?\d[\d,]*\.?\d*%?`)

// sentenceMatchesComputation 句子中出现与计算值在 0.5% 相对误差内的数字即视为引用该计算
func sentenceMatchesComputation(sentence string, comp model.ComputationRef) bool {
	if !comp.Defined {
		// 未定义的比率只按名字匹配
		return containsName(sentence, comp.Name)
	}
	for _, tok := range numberRe.FindAllString(sentence, -1) {
		tok = strings.ReplaceAll(tok, ",", "")
		tok = strings.TrimSuffix(tok, "%")
		val, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		if numericallyClose(val, comp.Value) || numericallyClose(val, comp.Value*100) {
			return true
		}
	}
	return false
}

func numericallyClose(a, b float64) bool {
	if a == b {
		return true
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= 0.005
}

func containsName(sentence, name string) bool {
	readable := strings.ReplaceAll(name, "_", " ")
	return strings.Contains(strings.ToLower(sentence), readable)
}

// bestChunk 返回与句子词面重合度最高的片段
func bestChunk(sentence string, hits []model.ScoredChunk) (*model.ScoredChunk, float64) {
	sentTokens := tokenize(sentence)
	if len(sentTokens) == 0 {
		return nil, 0
	}

	var best *model.ScoredChunk
	bestScore := -1.0
	for i := range hits {
		score := overlapRatio(sentTokens, tokenize(hits[i].Chunk.Text))
		if score > bestScore {
			bestScore = score
			best = &hits[i]
		}
	}
	return best, bestScore
}

// overlapRatio 句子词元在片段词元集合中的占比，忽略停用词
func overlapRatio(sentTokens []string, chunkTokens []string) float64 {
	if len(sentTokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(chunkTokens))
	for _, t := range chunkTokens {
		set[t] = true
	}
	matched := 0
	for _, t := range sentTokens {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(sentTokens))
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "is": true, "are": true,
	"was": true, "for": true, "on": true, "with": true, "that": true,
	"this": true, "it": true, "as": true, "by": true, "at": true,
}

var tokenRe = regexp.MustCompile(`[a-zA-Z0-9.%]+`)

func tokenize(text string) []string {
	var out []string
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(t) >= 2 && !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

const maxQuoteLen = 160

// quoteSpan 取片段开头一段作为引文摘录
func quoteSpan(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxQuoteLen {
		return text
	}
	cut := text[:maxQuoteLen]
	if idx := strings.LastIndex(cut, " "); idx > maxQuoteLen/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// BestEffort 二次生成仍不合格时的兜底：保留已匹配到的引用，
// 置信度压到低置信阈值以下并打上标记
func (v *Validator) BestEffort(r *Report) model.Answer {
	a := r.Answer
	if a.Confidence >= v.cfg.LowConfidenceCutoff {
		a.Confidence = v.cfg.LowConfidenceCutoff * 0.9
	}
	a.LowConfidence = true
	return a
}

// SortCitations 按文档与片段序号稳定排序引用，保证输出确定性
func SortCitations(cites []model.Citation) {
	sort.Slice(cites, func(i, j int) bool {
		if cites[i].DocumentID != cites[j].DocumentID {
			return cites[i].DocumentID < cites[j].DocumentID
		}
		return cites[i].Ordinal < cites[j].Ordinal
	})
}
