package model

// Chunk 文档片段，携带向量，一经创建不可修改
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal_index"` // 在文档内的顺序号
	Text       string    `json:"text"`
	Embedding  []float64 `json:"embedding"`
	// 解析阶段抽取出的数值字段（可选）
	NumericFields map[string]float64 `json:"numeric_fields,omitempty"`
}

// Query 一次请求的查询，按请求创建、请求结束即丢弃
type Query struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id,omitempty"` // 为空表示全库检索
	SessionID  string `json:"session_id,omitempty"`
	Context    string `json:"context,omitempty"` // 调用方显式附带的上下文
}

// ScoredChunk 检索命中的片段及其相关度
type ScoredChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Score      float64 `json:"relevance_score"` // ∈ [0,1]
	DocumentID string  `json:"document_id"`
}

// RetrievalResult 检索结果，按相关度降序、同分按 ordinal 升序
type RetrievalResult struct {
	Hits []ScoredChunk `json:"hits"`
}

// Empty 判断是否为空结果（合法状态，非错误）
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Hits) == 0
}

// TaskKind 规划阶段产出的任务类型
type TaskKind string

const (
	TaskRetrieve      TaskKind = "retrieve"
	TaskComputeRatios TaskKind = "compute_ratios"
	TaskComputeTrend  TaskKind = "compute_trend"
	TaskForecast      TaskKind = "compute_forecast"
	TaskDetectAnomaly TaskKind = "detect_anomaly"
	TaskBuildScenario TaskKind = "build_scenario"
	TaskBenchmark     TaskKind = "benchmark"
	TaskSynthesize    TaskKind = "synthesize"
)

// AnalysisTask 一次性消费的任务单元，不跨请求持久化
type AnalysisTask struct {
	Kind       TaskKind `json:"kind"`
	DocumentID string   `json:"document_id,omitempty"`
	Metric     string   `json:"metric,omitempty"`
	Periods    int      `json:"periods,omitempty"`
}

// FinancialSnapshot 单个报告期的财务数值，计算器的唯一输入来源
type FinancialSnapshot struct {
	Period string             `json:"period"`
	Fields map[string]float64 `json:"fields"`
}

// Field 读取字段，返回值与是否存在
func (s FinancialSnapshot) Field(name string) (float64, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Clone 深拷贝，情景建模在副本上做修改
func (s FinancialSnapshot) Clone() FinancialSnapshot {
	fields := make(map[string]float64, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return FinancialSnapshot{Period: s.Period, Fields: fields}
}

// RatioCategory 比率所属类别
type RatioCategory string

const (
	CategoryLiquidity     RatioCategory = "liquidity"
	CategoryProfitability RatioCategory = "profitability"
	CategoryLeverage      RatioCategory = "leverage"
	CategoryEfficiency    RatioCategory = "efficiency"
)

// RatioValue 单个比率：分母为零或字段缺失时 Defined=false，禁止出现 NaN/Inf
type RatioValue struct {
	Value    float64       `json:"value"`
	Defined  bool          `json:"defined"`
	Category RatioCategory `json:"category"`
}

// RatioResult 比率名 → 取值
type RatioResult map[string]RatioValue

// TrendDirection 趋势方向
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendFlat       TrendDirection = "flat"
)

// TrendResult 趋势统计量
type TrendResult struct {
	Direction          TrendDirection `json:"direction"`
	Strength           float64        `json:"strength"` // |r| ∈ [0,1]
	Slope              float64        `json:"slope"`
	RSquared           float64        `json:"r_squared"`
	PValue             float64        `json:"p_value"`
	ForecastNextPeriod float64        `json:"forecast_next_period"`
	Volatility         float64        `json:"volatility"` // 环比变化率的变异系数，≥ 0
}

// ForecastPoint 预测点，恒有 LowerBound ≤ Value ≤ UpperBound
type ForecastPoint struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// Severity 异常严重度
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly 一条异常记录
type Anomaly struct {
	Kind          string   `json:"kind"` // ratio_anomaly / zscore_anomaly
	Metric        string   `json:"metric"`
	ObservedValue float64  `json:"observed_value"`
	ExpectedLow   float64  `json:"expected_low"`
	ExpectedHigh  float64  `json:"expected_high"`
	Severity      Severity `json:"severity"`
	Description   string   `json:"description"`
}

// Impact 情景影响分类
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNeutral  Impact = "neutral"
	ImpactNegative Impact = "negative"
)

// ScenarioResult 情景建模结果
type ScenarioResult struct {
	ScenarioName     string             `json:"scenario_name"`
	ScenarioType     string             `json:"scenario_type"`
	BaseSnapshot     FinancialSnapshot  `json:"base_snapshot"`
	Changes          map[string]float64 `json:"changes"` // 字段 → 百分比增量
	ModifiedSnapshot FinancialSnapshot  `json:"modified_snapshot"`
	BaseRatios       RatioResult        `json:"base_ratios"`
	ModifiedRatios   RatioResult        `json:"modified_ratios"`
	Impact           Impact             `json:"impact"`
	ImpactScore      float64            `json:"impact_score"`
	KeyChanges       []string           `json:"key_changes"`
}

// RatioBenchmark 单个比率的行业分布，按百分位升序提供断点
type RatioBenchmark struct {
	Mean        float64             `json:"mean"`
	Median      float64             `json:"median"`
	Percentiles map[float64]float64 `json:"percentiles"` // 百分位 → 数值
}

// BenchmarkEntry 单个比率的对标结果
type BenchmarkEntry struct {
	CompanyValue   float64 `json:"company_value"`
	IndustryMean   float64 `json:"industry_mean"`
	IndustryMedian float64 `json:"industry_median"`
	Percentile     float64 `json:"percentile"` // ∈ [0,100]
	Performance    string  `json:"performance"`
	Interpretation string  `json:"interpretation"`
}

// BenchmarkResult 整体对标结论
type BenchmarkResult struct {
	Industry         string                    `json:"industry"`
	CompanySize      string                    `json:"company_size"`
	RatiosAnalysis   map[string]BenchmarkEntry `json:"ratios_analysis"`
	PerformanceScore float64                   `json:"performance_score"` // ∈ [0,1]
	Rankings         map[string]string         `json:"rankings"`
	Strengths        []string                  `json:"strengths"`
	Weaknesses       []string                  `json:"weaknesses"`
	Recommendations  []string                  `json:"recommendations"`
}

// Citation 生成文本回溯到证据片段的引用
type Citation struct {
	DocumentID     string  `json:"document_id"`
	ChunkID        string  `json:"chunk_id"`
	Ordinal        int     `json:"ordinal"`
	RelevanceScore float64 `json:"relevance_score"`
	QuotedSpan     string  `json:"quoted_span"`
}

// ComputationRef 指向某次计算器输出的引用
type ComputationRef struct {
	Kind    TaskKind `json:"kind"`
	Name    string   `json:"name"`
	Value   float64  `json:"value"`
	Defined bool     `json:"defined"`
}

// Answer 最终回答
type Answer struct {
	Text          string           `json:"text"`
	Citations     []Citation       `json:"citations"`
	Computations  []ComputationRef `json:"computations"`
	Confidence    float64          `json:"confidence"` // ∈ [0,1]
	LowConfidence bool             `json:"low_confidence"`
	Notes         []string         `json:"notes,omitempty"` // 部分失败、降级等说明
}

// Message 会话内的一条历史消息
type Message struct {
	Role    string `json:"role"` // user / assistant
	Content string `json:"content"`
}
