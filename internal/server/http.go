package server

import (
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/fin_insight/internal/conf"
	"github.com/iWorld-y/fin_insight/internal/service"
)

// NewHTTPServer 创建 HTTP 服务并注册全部路由
func NewHTTPServer(
	c *conf.Server,
	chat *service.ChatService,
	analytics *service.AnalyticsService,
	documents *service.DocumentService,
	logger log.Logger,
) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != "" {
		if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}

	srv := http.NewServer(opts...)

	srv.HandleFunc("/chat/query", method(nethttp.MethodPost, chat.HandleQuery))

	srv.HandleFunc("/analytics/ratios", method(nethttp.MethodPost, analytics.HandleRatios))
	srv.HandleFunc("/analytics/forecast", method(nethttp.MethodPost, analytics.HandleForecast))
	srv.HandleFunc("/analytics/trends", method(nethttp.MethodPost, analytics.HandleTrends))
	srv.HandleFunc("/analytics/anomaly-detection", method(nethttp.MethodPost, analytics.HandleAnomalyDetection))
	srv.HandleFunc("/analytics/scenario-modeling", method(nethttp.MethodPost, analytics.HandleScenarioModeling))
	srv.HandleFunc("/analytics/benchmarking", method(nethttp.MethodPost, analytics.HandleBenchmarking))
	srv.HandleFunc("/analytics/{document_id}/analyses", method(nethttp.MethodGet, analytics.HandleListAnalyses))

	srv.HandleFunc("/documents/{document_id}/chunks", method(nethttp.MethodPut, documents.HandlePutChunks))
	srv.HandleFunc("/documents/{document_id}/snapshots", method(nethttp.MethodPut, documents.HandlePutSnapshots))
	srv.HandleFunc("/documents/{document_id}", method(nethttp.MethodDelete, documents.HandleDeleteDocument))

	return srv
}

// method 限定请求方法
func method(want string, h nethttp.HandlerFunc) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != want {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
