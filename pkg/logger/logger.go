package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// Log 进程级日志实例，启动时由 InitLogger 配置一次
var Log = logrus.New()

var levelTags = map[logrus.Level]string{
	logrus.TraceLevel: "TRAC",
	logrus.DebugLevel: "DEBU",
	logrus.InfoLevel:  "INFO",
	logrus.WarnLevel:  "WARN",
	logrus.ErrorLevel: "ERRO",
	logrus.FatalLevel: "FATA",
	logrus.PanicLevel: "PANI",
}

// lineFormatter 单行输出：时间 级别 文件:行 | 消息 k=v...
type lineFormatter struct{}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(entry.Time.Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(levelTags[entry.Level])

	if entry.HasCaller() {
		fmt.Fprintf(&b, " %s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	b.WriteString(" | ")
	b.WriteString(entry.Message)

	// 附加字段按键名排序，保证同一条日志输出稳定
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// InitLogger 设置日志级别与输出目标。filePath 非空时同时写入文件。
func InitLogger(levelStr string, filePath string) error {
	Log.SetReportCaller(true)
	Log.SetFormatter(&lineFormatter{})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	out := io.Writer(os.Stdout)
	if filePath != "" {
		file, err := openLogFile(filePath)
		if err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	Log.SetOutput(out)

	return nil
}

func openLogFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
}
