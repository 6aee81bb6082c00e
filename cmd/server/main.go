package main

import (
	"flag"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2"
	kconfig "github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/fin_insight/internal/conf"
	"github.com/iWorld-y/fin_insight/internal/data"
	"github.com/iWorld-y/fin_insight/internal/server"
	"github.com/iWorld-y/fin_insight/internal/service"
	"github.com/iWorld-y/fin_insight/pkg/config"
	"github.com/iWorld-y/fin_insight/pkg/embedding"
	"github.com/iWorld-y/fin_insight/pkg/engine"
	"github.com/iWorld-y/fin_insight/pkg/generation"
	"github.com/iWorld-y/fin_insight/pkg/index"
	"github.com/iWorld-y/fin_insight/pkg/logger"
	"github.com/iWorld-y/fin_insight/pkg/retrieval"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "fin_insight"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()
	klogger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	// 服务外壳配置
	c := kconfig.New(
		kconfig.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}
	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 引擎策略配置从同一文件加载
	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(cfg.Log.Level, cfg.Log.File)

	app, cleanup, err := initApp(&bc, cfg, klogger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		panic(err)
	}
}

// initApp 手工装配全部依赖
func initApp(bc *conf.Bootstrap, cfg *config.Config, klogger log.Logger) (*kratos.App, func(), error) {
	d, cleanup, err := data.NewData(cfg.DB, klogger)
	if err != nil {
		return nil, nil, err
	}

	analysisRepo := data.NewAnalysisRepo(d, klogger)
	sessionRepo := data.NewSessionRepo(d, klogger)
	snapshotRepo := data.NewSnapshotRepo(d, klogger)
	benchmarkRepo := data.NewBenchmarkRepo(d, klogger)

	ix := index.New()
	retriever := retrieval.NewEngine(ix)
	embedder := embedding.NewClient(
		cfg.Embedding.BaseURL,
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
	)

	generator, err := generation.NewClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	eng := engine.NewEngine(cfg, retriever, embedder, generator, snapshotRepo, benchmarkRepo)

	chatSvc := service.NewChatService(cfg, eng, sessionRepo, klogger)
	analyticsSvc := service.NewAnalyticsService(cfg, snapshotRepo, analysisRepo, benchmarkRepo, klogger)
	documentSvc := service.NewDocumentService(ix, embedder, snapshotRepo, klogger)

	srv := server.NewHTTPServer(bc.Server, chatSvc, analyticsSvc, documentSvc, klogger)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Logger(klogger),
		kratos.Server(srv),
	)
	return app, cleanup, nil
}
