package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Calculator  CalculatorConfig  `yaml:"calculator"`
	Guardrail   GuardrailConfig   `yaml:"guardrail"`
	Assembler   AssemblerConfig   `yaml:"assembler"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	// 单次生成调用的超时秒数，不是整条流水线的预算
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// EmbeddingConfig 向量化服务相关配置
type EmbeddingConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetrievalConfig 检索默认参数
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// RatioRange 单个比率的正常区间
type RatioRange struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// CalculatorConfig 计算器策略配置。
// 区间、倍数、权重均为策略而非业务硬编码，见配置样例。
type CalculatorConfig struct {
	// 比率名 → 正常区间，越界即判异常
	RatioRanges map[string]RatioRange `yaml:"ratio_ranges"`
	// 异常严重度：越界距离相对区间宽度的倍数阈值
	SeverityMediumFactor float64 `yaml:"severity_medium_factor"` // 默认 1.5
	SeverityHighFactor   float64 `yaml:"severity_high_factor"`   // 默认 3.0
	// 时序异常的 z-score 阈值
	ZScoreThreshold float64 `yaml:"zscore_threshold"` // 默认 2.0
	// 预测置信区间宽度倍数（约 95% 对应 1.96）
	ForecastMultiplier float64 `yaml:"forecast_multiplier"`
	// 情景影响分类使用的关键比率权重
	ImpactWeights map[string]float64 `yaml:"impact_weights"`
	// |slope| 低于均值幅度的该比例则判为 flat
	FlatSlopeRatio float64 `yaml:"flat_slope_ratio"` // 默认 0.01
}

// GuardrailConfig 校验层阈值
type GuardrailConfig struct {
	// 词面重合度达到该值才允许挂引用
	OverlapThreshold float64 `yaml:"overlap_threshold"`
	// 无支撑断言占比超过该值则拒绝草稿并触发一次重生成
	RejectFraction float64 `yaml:"reject_fraction"`
	// 置信度低于该值触发重生成
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	// 低置信度标记的截断线
	LowConfidenceCutoff float64 `yaml:"low_confidence_cutoff"`
	// 置信度三项加权：引用相关度均值 / 受支撑断言占比 / 计算任务成功率
	RelevanceWeight float64 `yaml:"relevance_weight"`
	SupportWeight   float64 `yaml:"support_weight"`
	CalcWeight      float64 `yaml:"calc_weight"`
}

// AssemblerConfig 上下文拼装预算
type AssemblerConfig struct {
	// 提示词上下文的最大字符数
	CharBudget int `yaml:"char_budget"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// DBConfig 数据库相关配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LoadConfig 从指定路径加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults 填充未配置项的默认值
func (c *Config) ApplyDefaults() {
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.MinScore == 0 {
		c.Retrieval.MinScore = 0.2
	}
	if c.Calculator.SeverityMediumFactor == 0 {
		c.Calculator.SeverityMediumFactor = 1.5
	}
	if c.Calculator.SeverityHighFactor == 0 {
		c.Calculator.SeverityHighFactor = 3.0
	}
	if c.Calculator.ZScoreThreshold == 0 {
		c.Calculator.ZScoreThreshold = 2.0
	}
	if c.Calculator.ForecastMultiplier == 0 {
		c.Calculator.ForecastMultiplier = 1.96
	}
	if c.Calculator.FlatSlopeRatio == 0 {
		c.Calculator.FlatSlopeRatio = 0.01
	}
	if len(c.Calculator.RatioRanges) == 0 {
		c.Calculator.RatioRanges = map[string]RatioRange{
			"current_ratio":    {Low: 1.0, High: 3.0},
			"quick_ratio":      {Low: 0.5, High: 2.0},
			"debt_to_equity":   {Low: 0.0, High: 2.0},
			"gross_margin":     {Low: 0.1, High: 0.8},
			"net_margin":       {Low: 0.0, High: 0.3},
			"return_on_equity": {Low: 0.0, High: 0.5},
		}
	}
	if len(c.Calculator.ImpactWeights) == 0 {
		c.Calculator.ImpactWeights = map[string]float64{
			"net_margin":    0.4,
			"current_ratio": 0.3,
			"debt_ratio":    0.3,
		}
	}
	if c.Guardrail.OverlapThreshold == 0 {
		c.Guardrail.OverlapThreshold = 0.3
	}
	if c.Guardrail.RejectFraction == 0 {
		c.Guardrail.RejectFraction = 0.5
	}
	if c.Guardrail.ConfidenceFloor == 0 {
		c.Guardrail.ConfidenceFloor = 0.4
	}
	if c.Guardrail.LowConfidenceCutoff == 0 {
		c.Guardrail.LowConfidenceCutoff = 0.3
	}
	if c.Guardrail.RelevanceWeight == 0 && c.Guardrail.SupportWeight == 0 && c.Guardrail.CalcWeight == 0 {
		c.Guardrail.RelevanceWeight = 0.3
		c.Guardrail.SupportWeight = 0.5
		c.Guardrail.CalcWeight = 0.2
	}
	if c.Assembler.CharBudget == 0 {
		c.Assembler.CharBudget = 12000
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = 15
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 2
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 60
	}
}
