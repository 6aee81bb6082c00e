package conf

// Bootstrap 服务外壳配置，由 kratos config 从 yaml 扫描得到。
// 引擎策略配置（检索、计算器、护栏阈值等）由 pkg/config 从同一文件加载。
type Bootstrap struct {
	Server *Server
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string
	Timeout string
}
