package service

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gorilla/mux"

	"github.com/iWorld-y/fin_insight/internal/data"
	"github.com/iWorld-y/fin_insight/pkg/calculator"
	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/model"
)

// AnalyticsService 分析类接口：比率、趋势、预测、异常、情景、对标
type AnalyticsService struct {
	cfg        *config.Config
	snapshots  *data.SnapshotRepo
	analyses   *data.AnalysisRepo
	benchmarks *data.BenchmarkRepo
	log        *log.Helper
}

// NewAnalyticsService 创建分析服务
func NewAnalyticsService(
	cfg *config.Config,
	snapshots *data.SnapshotRepo,
	analyses *data.AnalysisRepo,
	benchmarks *data.BenchmarkRepo,
	logger log.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		cfg:        cfg,
		snapshots:  snapshots,
		analyses:   analyses,
		benchmarks: benchmarks,
		log:        log.NewHelper(logger),
	}
}

// saveResult 异步持久化一条分析记录，失败只记日志
func (s *AnalyticsService) saveResult(r *http.Request, documentID, analysisType string, result any, confidence float64) {
	if err := s.analyses.Save(r.Context(), documentID, analysisType, result, confidence); err != nil {
		s.log.WithContext(r.Context()).Warnf("persist %s result failed: %v", analysisType, err)
	}
}

type ratiosReq struct {
	DocumentID string   `json:"document_id"`
	RatioTypes []string `json:"ratio_types"`
	Period     string   `json:"period"`
}

type ratiosResp struct {
	DocumentID      string                        `json:"document_id"`
	Period          string                        `json:"period"`
	Ratios          map[string]map[string]float64 `json:"ratios"`
	Undefined       []string                      `json:"undefined,omitempty"`
	CalculationDate string                        `json:"calculation_date"`
	ConfidenceScore float64                       `json:"confidence_score"`
}

// HandleRatios POST /analytics/ratios
func (s *AnalyticsService) HandleRatios(w http.ResponseWriter, r *http.Request) {
	var req ratiosReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentID == "" {
		badRequest(w, "document_id is required")
		return
	}

	snap, err := s.snapshots.Snapshot(r.Context(), req.DocumentID, req.Period)
	if err != nil {
		writeError(w, err)
		return
	}

	var categories []model.RatioCategory
	for _, t := range req.RatioTypes {
		categories = append(categories, model.RatioCategory(strings.ToLower(t)))
	}

	result := calculator.Ratios(*snap, categories...)

	grouped := map[string]map[string]float64{}
	var undefined []string
	defined := 0
	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rv := result[name]
		if !rv.Defined {
			undefined = append(undefined, name)
			continue
		}
		defined++
		cat := string(rv.Category)
		if grouped[cat] == nil {
			grouped[cat] = map[string]float64{}
		}
		grouped[cat][name] = rv.Value
	}

	confidence := 0.0
	if len(result) > 0 {
		confidence = float64(defined) / float64(len(result))
	}

	resp := ratiosResp{
		DocumentID:      req.DocumentID,
		Period:          snap.Period,
		Ratios:          grouped,
		Undefined:       undefined,
		CalculationDate: time.Now().UTC().Format(time.RFC3339),
		ConfidenceScore: confidence,
	}
	s.saveResult(r, req.DocumentID, "ratios", resp, confidence)
	writeJSON(w, http.StatusOK, resp)
}

type forecastReq struct {
	DocumentID string `json:"document_id"`
	Metric     string `json:"metric"`
	Periods    int    `json:"periods"`
	Method     string `json:"method"`
}

type forecastResp struct {
	DocumentID          string                `json:"document_id"`
	Metric              string                `json:"metric"`
	Method              string                `json:"method"`
	ForecastData        []model.ForecastPoint `json:"forecast_data"`
	ConfidenceIntervals [][2]float64          `json:"confidence_intervals"`
	CreatedAt           string                `json:"created_at"`
}

// HandleForecast POST /analytics/forecast
func (s *AnalyticsService) HandleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentID == "" || req.Metric == "" {
		badRequest(w, "document_id and metric are required")
		return
	}
	if req.Periods <= 0 {
		req.Periods = 4
	}
	if req.Method == "" {
		req.Method = calculator.MethodLinear
	}

	series, err := s.snapshots.Series(r.Context(), req.DocumentID, req.Metric)
	if err != nil {
		writeError(w, err)
		return
	}

	points, err := calculator.Forecast(series, req.Periods, req.Method, s.cfg.Calculator.ForecastMultiplier)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	intervals := make([][2]float64, len(points))
	for i, p := range points {
		intervals[i] = [2]float64{p.LowerBound, p.UpperBound}
	}

	resp := forecastResp{
		DocumentID:          req.DocumentID,
		Metric:              req.Metric,
		Method:              req.Method,
		ForecastData:        points,
		ConfidenceIntervals: intervals,
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
	}
	s.saveResult(r, req.DocumentID, "forecast", resp, 1)
	writeJSON(w, http.StatusOK, resp)
}

type trendsReq struct {
	DocumentID string   `json:"document_id"`
	Metrics    []string `json:"metrics"`
	TimePeriod string   `json:"time_period"`
}

type trendsResp struct {
	DocumentID   string                       `json:"document_id"`
	Trends       map[string]model.TrendResult `json:"trends"`
	Failures     map[string]string            `json:"failures,omitempty"`
	AnalysisDate string                       `json:"analysis_date"`
}

// HandleTrends POST /analytics/trends
func (s *AnalyticsService) HandleTrends(w http.ResponseWriter, r *http.Request) {
	var req trendsReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentID == "" || len(req.Metrics) == 0 {
		badRequest(w, "document_id and metrics are required")
		return
	}

	trends := map[string]model.TrendResult{}
	failures := map[string]string{}
	for _, metric := range req.Metrics {
		series, err := s.snapshots.Series(r.Context(), req.DocumentID, metric)
		if err != nil {
			failures[metric] = err.Error()
			continue
		}
		trend, err := calculator.Trend(series, s.cfg.Calculator.FlatSlopeRatio)
		if err != nil {
			failures[metric] = err.Error()
			continue
		}
		trends[metric] = trend
	}

	resp := trendsResp{
		DocumentID:   req.DocumentID,
		Trends:       trends,
		Failures:     failures,
		AnalysisDate: time.Now().UTC().Format(time.RFC3339),
	}
	s.saveResult(r, req.DocumentID, "trends", resp, 1)
	writeJSON(w, http.StatusOK, resp)
}

type anomalyReq struct {
	DocumentID     string               `json:"document_id"`
	TimeSeriesData map[string][]float64 `json:"time_series_data"`
}

type anomalyResp struct {
	DocumentID        string          `json:"document_id"`
	AnomaliesDetected []model.Anomaly `json:"anomalies_detected"`
	RiskLevel         string          `json:"risk_level"`
	ConfidenceScore   float64         `json:"confidence_score"`
	Recommendations   []string        `json:"recommendations"`
}

// HandleAnomalyDetection POST /analytics/anomaly-detection
func (s *AnalyticsService) HandleAnomalyDetection(w http.ResponseWriter, r *http.Request) {
	var req anomalyReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentID == "" && len(req.TimeSeriesData) == 0 {
		badRequest(w, "document_id or time_series_data is required")
		return
	}

	anomalies := []model.Anomaly{}

	if req.DocumentID != "" {
		snap, err := s.snapshots.Snapshot(r.Context(), req.DocumentID, "")
		if err != nil {
			writeError(w, err)
			return
		}
		ratios := calculator.Ratios(*snap)
		anomalies = append(anomalies, calculator.DetectRatioAnomalies(ratios, s.cfg.Calculator)...)
	}

	metrics := make([]string, 0, len(req.TimeSeriesData))
	for metric := range req.TimeSeriesData {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)
	for _, metric := range metrics {
		anomalies = append(anomalies,
			calculator.DetectSeriesAnomalies(metric, req.TimeSeriesData[metric], s.cfg.Calculator)...)
	}

	resp := anomalyResp{
		DocumentID:        req.DocumentID,
		AnomaliesDetected: anomalies,
		RiskLevel:         calculator.RiskLevel(anomalies),
		ConfidenceScore:   calculator.AnomalyConfidence(anomalies),
		Recommendations:   calculator.AnomalyRecommendations(anomalies),
	}
	s.saveResult(r, req.DocumentID, "anomaly_detection", resp, resp.ConfidenceScore)
	writeJSON(w, http.StatusOK, resp)
}

type scenarioReq struct {
	DocumentID   string             `json:"document_id"`
	BaseData     map[string]float64 `json:"base_data"`
	ScenarioName string             `json:"scenario_name"`
	ScenarioType string             `json:"scenario_type"`
	Changes      map[string]float64 `json:"changes"`
}

type scenarioResp struct {
	model.ScenarioResult
	ImpactAnalysis impactAnalysis `json:"impact_analysis"`
}

type impactAnalysis struct {
	Impact      model.Impact `json:"impact"`
	ImpactScore float64      `json:"impact_score"`
	KeyChanges  []string     `json:"key_changes"`
}

// HandleScenarioModeling POST /analytics/scenario-modeling
func (s *AnalyticsService) HandleScenarioModeling(w http.ResponseWriter, r *http.Request) {
	var req scenarioReq
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Changes) == 0 {
		badRequest(w, "changes is required")
		return
	}

	var base model.FinancialSnapshot
	switch {
	case len(req.BaseData) > 0:
		base = model.FinancialSnapshot{Period: "base", Fields: req.BaseData}
	case req.DocumentID != "":
		snap, err := s.snapshots.Snapshot(r.Context(), req.DocumentID, "")
		if err != nil {
			writeError(w, err)
			return
		}
		base = *snap
	default:
		badRequest(w, "base_data or document_id is required")
		return
	}

	result := calculator.BuildScenario(base, req.ScenarioName, req.ScenarioType, req.Changes, s.cfg.Calculator)
	resp := scenarioResp{
		ScenarioResult: result,
		ImpactAnalysis: impactAnalysis{
			Impact:      result.Impact,
			ImpactScore: result.ImpactScore,
			KeyChanges:  result.KeyChanges,
		},
	}
	s.saveResult(r, req.DocumentID, "scenario_modeling", resp, 1)
	writeJSON(w, http.StatusOK, resp)
}

type benchmarkReq struct {
	DocumentID  string             `json:"document_id"`
	CompanyData map[string]float64 `json:"company_data"`
	Industry    string             `json:"industry"`
	CompanySize string             `json:"company_size"`
}

// HandleBenchmarking POST /analytics/benchmarking
func (s *AnalyticsService) HandleBenchmarking(w http.ResponseWriter, r *http.Request) {
	var req benchmarkReq
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Industry == "" {
		badRequest(w, "industry is required")
		return
	}

	var snap model.FinancialSnapshot
	switch {
	case len(req.CompanyData) > 0:
		snap = model.FinancialSnapshot{Period: "current", Fields: req.CompanyData}
	case req.DocumentID != "":
		resolved, err := s.snapshots.Snapshot(r.Context(), req.DocumentID, "")
		if err != nil {
			writeError(w, err)
			return
		}
		snap = *resolved
	default:
		badRequest(w, "company_data or document_id is required")
		return
	}

	table, err := s.benchmarks.Table(r.Context(), req.Industry, req.CompanySize)
	if err != nil {
		writeError(w, err)
		return
	}

	result := calculator.Benchmark(calculator.Ratios(snap), table, req.Industry, req.CompanySize)
	s.saveResult(r, req.DocumentID, "benchmarking", result, result.PerformanceScore)
	writeJSON(w, http.StatusOK, result)
}

// HandleListAnalyses GET /analytics/{document_id}/analyses?analysis_type=
func (s *AnalyticsService) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["document_id"]
	if documentID == "" {
		badRequest(w, "document_id is required in path")
		return
	}

	analysisType := r.URL.Query().Get("analysis_type")
	records, err := s.analyses.List(r.Context(), documentID, analysisType)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []data.AnalysisRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": documentID,
		"analyses":    records,
		"total":       len(records),
	})
}
