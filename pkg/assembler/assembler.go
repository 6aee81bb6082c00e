package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Assembler 将检索片段、会话历史与计算结果拼装成有上限的提示词上下文
type Assembler struct {
	charBudget int
}

// New 创建拼装器，budget 为上下文最大字符数
func New(charBudget int) *Assembler {
	if charBudget <= 0 {
		charBudget = 12000
	}
	return &Assembler{charBudget: charBudget}
}

// Context 一次请求累积的上下文素材
type Context struct {
	Retrieved    []model.ScoredChunk
	Computations []model.ComputationRef
	CompText     []string // 计算结果的文字描述
	History      []model.Message
	ExplicitCtx  string   // 调用方显式附带的上下文
	PartialNotes []string // 部分失败说明，对合成阶段可见
}

// Build 产出提示词正文。超出预算时先丢最旧的历史，再截断检索文本。
func (a *Assembler) Build(c *Context) string {
	var sb strings.Builder

	if c.ExplicitCtx != "" {
		sb.WriteString("Additional context:\n")
		sb.WriteString(c.ExplicitCtx)
		sb.WriteString("\n\n")
	}

	if len(c.CompText) > 0 {
		sb.WriteString("Computed financial metrics:\n")
		for _, line := range c.CompText {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	for _, note := range c.PartialNotes {
		fmt.Fprintf(&sb, "Note: %s\n", note)
	}
	if len(c.PartialNotes) > 0 {
		sb.WriteString("\n")
	}

	// 历史从最近的往回收，预算内能装多少装多少
	historyBudget := a.charBudget / 4
	var history []string
	used := 0
	for i := len(c.History) - 1; i >= 0; i-- {
		m := c.History[i]
		line := fmt.Sprintf("%s: %s", m.Role, m.Content)
		if used+len(line) > historyBudget {
			break
		}
		history = append([]string{line}, history...)
		used += len(line)
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(strings.Join(history, "\n"))
		sb.WriteString("\n\n")
	}

	if len(c.Retrieved) > 0 {
		sb.WriteString("Context from documents:\n")
		for i, hit := range c.Retrieved {
			fmt.Fprintf(&sb, "[Context %d] (doc %s, chunk %d, relevance %.2f): %s\n\n",
				i+1, hit.DocumentID, hit.Chunk.Ordinal, hit.Score, hit.Chunk.Text)
			if sb.Len() > a.charBudget {
				break
			}
		}
	}

	out := sb.String()
	if len(out) > a.charBudget {
		// 截断点退到 rune 边界，避免把多字节字符切坏
		cut := a.charBudget
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}

// DescribeRatioResult 把比率结果转成可入上下文的文字
func DescribeRatioResult(ratios model.RatioResult, names []string) []string {
	var lines []string
	for _, name := range names {
		rv, ok := ratios[name]
		if !ok {
			continue
		}
		if rv.Defined {
			lines = append(lines, fmt.Sprintf("%s = %.4g (%s)", name, rv.Value, rv.Category))
		} else {
			lines = append(lines, fmt.Sprintf("%s is undefined (zero or missing denominator)", name))
		}
	}
	return lines
}
