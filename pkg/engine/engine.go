package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iWorld-y/fin_insight/pkg/assembler"
	"github.com/iWorld-y/fin_insight/pkg/calculator"
	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/embedding"
	"github.com/iWorld-y/fin_insight/pkg/generation"
	"github.com/iWorld-y/fin_insight/pkg/guardrail"
	"github.com/iWorld-y/fin_insight/pkg/logger"
	"github.com/iWorld-y/fin_insight/pkg/model"
	"github.com/iWorld-y/fin_insight/pkg/retrieval"
)

// State 流水线状态
type State string

const (
	StatePlanning     State = "planning"
	StateRetrieving   State = "retrieving"
	StateComputing    State = "computing"
	StateSynthesizing State = "synthesizing"
	StateValidating   State = "validating"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// SnapshotResolver 按 document_id 取财务快照与指标时间序列
type SnapshotResolver interface {
	Snapshot(ctx context.Context, documentID, period string) (*model.FinancialSnapshot, error)
	Series(ctx context.Context, documentID, metric string) ([]float64, error)
}

// BenchmarkProvider 提供行业参考分布
type BenchmarkProvider interface {
	Table(ctx context.Context, industry, companySize string) (map[string]model.RatioBenchmark, error)
}

// Engine 单次查询的流水线编排器。除只读的索引与配置外不持有可变状态，
// 并发查询各自独立运行。
type Engine struct {
	cfg        *config.Config
	retriever  *retrieval.Engine
	embedder   embedding.Embedder
	generator  generation.Generator
	validator  *guardrail.Validator
	snapshots  SnapshotResolver
	benchmarks BenchmarkProvider
	assembler  *assembler.Assembler
}

// NewEngine 创建编排器
func NewEngine(
	cfg *config.Config,
	retriever *retrieval.Engine,
	embedder embedding.Embedder,
	generator generation.Generator,
	snapshots SnapshotResolver,
	benchmarks BenchmarkProvider,
) *Engine {
	return &Engine{
		cfg:        cfg,
		retriever:  retriever,
		embedder:   embedder,
		generator:  generator,
		validator:  guardrail.NewValidator(cfg.Guardrail),
		snapshots:  snapshots,
		benchmarks: benchmarks,
		assembler:  assembler.New(cfg.Assembler.CharBudget),
	}
}

// QueryRequest 单轮问答请求
type QueryRequest struct {
	Query      string
	DocumentID string // 为空表示全库检索
	Context    string // 调用方附带的上下文
	History    []model.Message
	Industry   string
	Size       string
}

// QueryResult 流水线输出
type QueryResult struct {
	Answer      model.Answer
	State       State
	Tasks       []model.AnalysisTask
	HitCount    int
	Elapsed     time.Duration
	Regenerated bool
}

const systemPrompt = "You are a financial analyst assistant. Answer the user's question using " +
	"ONLY the provided document context and computed financial metrics. Quote figures exactly " +
	"as given. If the context is insufficient, say so explicitly instead of guessing."

// Answer 执行一次完整的问答流水线
func (e *Engine) Answer(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	// Planning
	tasks := Plan(req.Query, req.DocumentID)
	logger.Log.Infof("查询规划完成，共 %d 个任务: %s", len(tasks), describeTasks(tasks))

	res := &QueryResult{Tasks: tasks, State: StatePlanning}
	asm := &assembler.Context{History: req.History, ExplicitCtx: req.Context}

	// Retrieving
	res.State = StateRetrieving
	hits := e.runRetrieval(ctx, req, asm)
	res.HitCount = len(hits)

	// Computing
	calcTasks := calculatorTasks(tasks)
	calcSuccessRatio := 1.0
	var comps []model.ComputationRef
	if len(calcTasks) > 0 {
		res.State = StateComputing
		var failed int
		comps, failed = e.runComputations(ctx, req, calcTasks, asm)
		calcSuccessRatio = float64(len(calcTasks)-failed) / float64(len(calcTasks))
		if failed == len(calcTasks) && len(hits) == 0 {
			// 整个阶段失败且没有任何可引用证据
			res.State = StateFailed
			res.Answer = insufficientDataAnswer(asm.PartialNotes)
			res.Elapsed = time.Since(start)
			return res, nil
		}
	}

	if len(hits) == 0 && len(comps) == 0 {
		res.State = StateDone
		res.Answer = insufficientDataAnswer(asm.PartialNotes)
		res.Elapsed = time.Since(start)
		return res, nil
	}

	// Synthesizing
	res.State = StateSynthesizing
	prompt := e.assembler.Build(asm) + "\n\nQuestion: " + req.Query
	draft, genErr := e.generator.Generate(ctx, systemPrompt, prompt)
	if genErr != nil {
		logger.Log.Errorf("生成失败，返回降级答案: %v", genErr)
		res.State = StateDone
		res.Answer = e.degradedAnswer(asm, comps, hits)
		res.Elapsed = time.Since(start)
		return res, nil
	}

	// Validating，最多回到 Synthesizing 一次
	res.State = StateValidating
	report := e.validator.Validate(draft, hits, comps, calcSuccessRatio)
	if e.validator.NeedsRegeneration(report) {
		logger.Log.Warnf("答案置信度 %.2f 低于下限，触发重新生成", report.Answer.Confidence)
		res.Regenerated = true
		feedback := e.validator.Feedback(report)
		redraft, err := e.generator.Generate(ctx, systemPrompt, prompt+"\n\n"+feedback)
		if err == nil {
			second := e.validator.Validate(redraft, hits, comps, calcSuccessRatio)
			if e.validator.NeedsRegeneration(second) {
				report = second
				report.Answer = e.validator.BestEffort(second)
			} else {
				report = second
			}
		} else {
			report.Answer = e.validator.BestEffort(report)
		}
	}

	answer := report.Answer
	guardrail.SortCitations(answer.Citations)
	answer.Notes = append(answer.Notes, asm.PartialNotes...)

	res.State = StateDone
	res.Answer = answer
	res.Elapsed = time.Since(start)
	logger.Log.Infof("查询完成，耗时 %s，置信度 %.2f，引用 %d 条", res.Elapsed, answer.Confidence, len(answer.Citations))
	return res, nil
}

// runRetrieval 嵌入查询并执行检索；外部嵌入服务失败时记录降级说明，不中断流水线
func (e *Engine) runRetrieval(ctx context.Context, req *QueryRequest, asm *assembler.Context) []model.ScoredChunk {
	embCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	vec, err := e.embedder.Embed(embCtx, req.Query)
	if err != nil {
		// 瞬时故障重试一次
		time.Sleep(500 * time.Millisecond)
		retryCtx, cancel2 := context.WithTimeout(ctx, 15*time.Second)
		vec, err = e.embedder.Embed(retryCtx, req.Query)
		cancel2()
	}
	if err != nil {
		logger.Log.Errorf("查询嵌入失败: %v", err)
		asm.PartialNotes = append(asm.PartialNotes, "document retrieval unavailable (embedding service error)")
		return nil
	}

	result, err := e.retriever.Retrieve(ctx, vec, req.DocumentID, e.cfg.Retrieval.TopK, e.cfg.Retrieval.MinScore)
	if err != nil {
		logger.Log.Errorf("检索失败: %v", err)
		asm.PartialNotes = append(asm.PartialNotes, "document retrieval failed")
		return nil
	}
	asm.Retrieved = result.Hits
	return result.Hits
}

// runComputations 并行执行计算任务。计算器是纯函数，失败只记一条说明。
func (e *Engine) runComputations(ctx context.Context, req *QueryRequest, tasks []model.AnalysisTask, asm *assembler.Context) (comps []model.ComputationRef, failed int) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(task model.AnalysisTask) {
			defer wg.Done()

			refs, lines, err := e.runTask(ctx, req, task)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Log.Warnf("计算任务失败 [%s]: %v", task.Kind, err)
				asm.PartialNotes = append(asm.PartialNotes, fmt.Sprintf("%s unavailable: %v", task.Kind, err))
				return
			}
			comps = append(comps, refs...)
			asm.CompText = append(asm.CompText, lines...)
		}(task)
	}
	wg.Wait()

	// 并行收集后排序，保证确定性输出
	sort.Slice(comps, func(i, j int) bool {
		if comps[i].Kind != comps[j].Kind {
			return comps[i].Kind < comps[j].Kind
		}
		return comps[i].Name < comps[j].Name
	})
	sort.Strings(asm.CompText)
	return comps, failed
}

func (e *Engine) runTask(ctx context.Context, req *QueryRequest, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	switch task.Kind {
	case model.TaskComputeRatios:
		return e.taskRatios(ctx, task)
	case model.TaskComputeTrend:
		return e.taskTrend(ctx, task)
	case model.TaskForecast:
		return e.taskForecast(ctx, task)
	case model.TaskDetectAnomaly:
		return e.taskAnomaly(ctx, task)
	case model.TaskBenchmark:
		return e.taskBenchmark(ctx, req, task)
	default:
		return nil, nil, fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}

func (e *Engine) taskRatios(ctx context.Context, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	snap, err := e.snapshots.Snapshot(ctx, task.DocumentID, "")
	if err != nil {
		return nil, nil, fmt.Errorf("resolve snapshot: %w", err)
	}

	ratios := calculator.Ratios(*snap)
	names := make([]string, 0, len(ratios))
	for name := range ratios {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []model.ComputationRef
	for _, name := range names {
		rv := ratios[name]
		refs = append(refs, model.ComputationRef{
			Kind:    model.TaskComputeRatios,
			Name:    name,
			Value:   rv.Value,
			Defined: rv.Defined,
		})
	}
	return refs, assembler.DescribeRatioResult(ratios, names), nil
}

func (e *Engine) taskTrend(ctx context.Context, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	series, err := e.snapshots.Series(ctx, task.DocumentID, task.Metric)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve series for %s: %w", task.Metric, err)
	}

	trend, err := calculator.Trend(series, e.cfg.Calculator.FlatSlopeRatio)
	if err != nil {
		return nil, nil, err
	}

	refs := []model.ComputationRef{
		{Kind: model.TaskComputeTrend, Name: task.Metric + "_slope", Value: trend.Slope, Defined: true},
		{Kind: model.TaskComputeTrend, Name: task.Metric + "_forecast_next", Value: trend.ForecastNextPeriod, Defined: true},
	}
	line := fmt.Sprintf("%s trend is %s (slope %.4g, r_squared %.3f, volatility %.3f), next period projection %.4g",
		task.Metric, trend.Direction, trend.Slope, trend.RSquared, trend.Volatility, trend.ForecastNextPeriod)
	return refs, []string{line}, nil
}

func (e *Engine) taskForecast(ctx context.Context, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	series, err := e.snapshots.Series(ctx, task.DocumentID, task.Metric)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve series for %s: %w", task.Metric, err)
	}

	points, err := calculator.Forecast(series, task.Periods, calculator.MethodLinear, e.cfg.Calculator.ForecastMultiplier)
	if err != nil {
		return nil, nil, err
	}

	var refs []model.ComputationRef
	var lines []string
	for _, p := range points {
		refs = append(refs, model.ComputationRef{
			Kind:    model.TaskForecast,
			Name:    fmt.Sprintf("%s_%s", task.Metric, p.Period),
			Value:   p.Value,
			Defined: true,
		})
		lines = append(lines, fmt.Sprintf("%s forecast %s: %.4g (range %.4g to %.4g)",
			task.Metric, p.Period, p.Value, p.LowerBound, p.UpperBound))
	}
	return refs, lines, nil
}

func (e *Engine) taskAnomaly(ctx context.Context, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	snap, err := e.snapshots.Snapshot(ctx, task.DocumentID, "")
	if err != nil {
		return nil, nil, fmt.Errorf("resolve snapshot: %w", err)
	}

	ratios := calculator.Ratios(*snap)
	anomalies := calculator.DetectRatioAnomalies(ratios, e.cfg.Calculator)

	var refs []model.ComputationRef
	var lines []string
	if len(anomalies) == 0 {
		lines = append(lines, "no ratio anomalies detected against configured normal ranges")
	}
	for _, a := range anomalies {
		refs = append(refs, model.ComputationRef{
			Kind:    model.TaskDetectAnomaly,
			Name:    a.Metric,
			Value:   a.ObservedValue,
			Defined: true,
		})
		lines = append(lines, fmt.Sprintf("anomaly: %s = %.4g outside normal range [%.4g, %.4g], severity %s",
			a.Metric, a.ObservedValue, a.ExpectedLow, a.ExpectedHigh, a.Severity))
	}
	return refs, lines, nil
}

func (e *Engine) taskBenchmark(ctx context.Context, req *QueryRequest, task model.AnalysisTask) ([]model.ComputationRef, []string, error) {
	if e.benchmarks == nil {
		return nil, nil, fmt.Errorf("benchmark data provider not configured")
	}
	industry := req.Industry
	if industry == "" {
		industry = "general"
	}

	table, err := e.benchmarks.Table(ctx, industry, req.Size)
	if err != nil {
		return nil, nil, fmt.Errorf("load benchmark table: %w", err)
	}

	snap, err := e.snapshots.Snapshot(ctx, task.DocumentID, "")
	if err != nil {
		return nil, nil, fmt.Errorf("resolve snapshot: %w", err)
	}

	result := calculator.Benchmark(calculator.Ratios(*snap), table, industry, req.Size)

	names := make([]string, 0, len(result.RatiosAnalysis))
	for name := range result.RatiosAnalysis {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []model.ComputationRef
	var lines []string
	for _, name := range names {
		entry := result.RatiosAnalysis[name]
		refs = append(refs, model.ComputationRef{
			Kind:    model.TaskBenchmark,
			Name:    name + "_percentile",
			Value:   entry.Percentile,
			Defined: true,
		})
		lines = append(lines, fmt.Sprintf("benchmark: %s at percentile %.0f of %s industry (%s)",
			name, entry.Percentile, industry, entry.Performance))
	}
	lines = append(lines, fmt.Sprintf("overall performance score %.2f", result.PerformanceScore))
	return refs, lines, nil
}

// degradedAnswer 生成服务不可用时由计算结果拼出的降级答案
func (e *Engine) degradedAnswer(asm *assembler.Context, comps []model.ComputationRef, hits []model.ScoredChunk) model.Answer {
	var sb strings.Builder
	sb.WriteString("The narrative generation service is currently unavailable. ")
	if len(asm.CompText) > 0 {
		sb.WriteString("Computed metrics:\n")
		for _, line := range asm.CompText {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	var citations []model.Citation
	for _, hit := range hits {
		citations = append(citations, model.Citation{
			DocumentID:     hit.DocumentID,
			ChunkID:        hit.Chunk.ID,
			Ordinal:        hit.Chunk.Ordinal,
			RelevanceScore: hit.Score,
			QuotedSpan:     hit.Chunk.Text,
		})
		if len(citations) >= 3 {
			break
		}
	}

	notes := append([]string{"generation unavailable"}, asm.PartialNotes...)
	return model.Answer{
		Text:          sb.String(),
		Citations:     citations,
		Computations:  comps,
		Confidence:    0.2,
		LowConfidence: true,
		Notes:         notes,
	}
}

func insufficientDataAnswer(notes []string) model.Answer {
	return model.Answer{
		Text:          "Insufficient data to answer this question: no relevant document content or financial data was found.",
		Confidence:    0,
		LowConfidence: true,
		Notes:         append([]string{"insufficient data"}, notes...),
	}
}

func calculatorTasks(tasks []model.AnalysisTask) []model.AnalysisTask {
	var out []model.AnalysisTask
	for _, t := range tasks {
		switch t.Kind {
		case model.TaskRetrieve, model.TaskSynthesize:
		default:
			out = append(out, t)
		}
	}
	return out
}

func describeTasks(tasks []model.AnalysisTask) string {
	kinds := make([]string, len(tasks))
	for i, t := range tasks {
		kinds[i] = string(t.Kind)
	}
	return strings.Join(kinds, " -> ")
}
