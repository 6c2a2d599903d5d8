package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 报价进程的结构化日志，额外持有打开的日志文件以便退出时关闭。
type Logger struct {
	*zap.Logger
	config Config
	files  []*os.File
}

// DefaultFile outputs 含 file 但未指定路径时写入的文件。
const DefaultFile = "logs/mmu-quoter.log"

// Config 日志配置。outputs 可选 stdout / file；errorFile 非空时 error 级别另写一份。
type Config struct {
	Level     string   `yaml:"level"`
	Outputs   []string `yaml:"outputs"`
	File      string   `yaml:"file"`
	ErrorFile string   `yaml:"errorFile"`
	Format    string   `yaml:"format"` // json | console
}

// DefaultConfig 前台运行时人读的 console 格式；部署时在配置里改成 json。
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Outputs: []string{"stdout"},
		Format:  "console",
	}
}

// New 按配置组装 zap core。文件型输出一律 JSON，便于事后检索 decision/order 事件。
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if cfg.Format != "" && cfg.Format != "json" && cfg.Format != "console" {
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	l := &Logger{config: cfg}

	var cores []zapcore.Core
	if contains(cfg.Outputs, "stdout") {
		var enc zapcore.Encoder = zapcore.NewJSONEncoder(encCfg)
		if cfg.Format == "console" {
			consoleCfg := encCfg
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			enc = zapcore.NewConsoleEncoder(consoleCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
	}
	if contains(cfg.Outputs, "file") {
		path := cfg.File
		if path == "" {
			path = DefaultFile
		}
		f, err := l.open(path)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}
	if cfg.ErrorFile != "" {
		f, err := l.open(cfg.ErrorFile)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.ErrorLevel))
	}

	l.Logger = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("app", "mmu-quoter")))
	return l, nil
}

func (l *Logger) open(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.closeFiles()
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.closeFiles()
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

func (l *Logger) closeFiles() error {
	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.files = nil
	return errors.Join(errs...)
}

// NewNop 不输出任何内容的 Logger，用于测试与未配置日志的组件
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// NewWithCore 用自定义 core 构建，测试里配合 zaptest/observer 断言日志
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{Logger: zap.New(core), config: DefaultConfig()}
}

// WithFields 添加字段返回新的logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &Logger{
		Logger: l.Logger.With(zapFields...),
		config: l.config,
	}
}

// LogOrder 记录订单相关事件（下单/拒单/撤单），以 client order id 关联
func (l *Logger) LogOrder(event string, clientOrderID string, fields map[string]interface{}) {
	zapFields := append(l.eventFields(event, fields), zap.String("client_order_id", clientOrderID))
	l.Info("order_event", zapFields...)
}

// LogDecision 记录每个周期的 HOLD/REFRESH 决策，label 形如 HOLD(band)
func (l *Logger) LogDecision(label string, fields map[string]interface{}) {
	l.Info("decision_event", l.eventFields(label, fields)...)
}

// LogReconcile 记录对账异常（缺档、簿上无本引擎订单）
func (l *Logger) LogReconcile(event string, fields map[string]interface{}) {
	l.Warn("reconcile_event", l.eventFields(event, fields)...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, context map[string]interface{}) {
	zapFields := append(l.eventFields("error", context), zap.Error(err))
	l.Error("error_event", zapFields...)
}

func (l *Logger) eventFields(event string, fields map[string]interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+2)
	zapFields = append(zapFields, zap.String("event", event), zap.String("ts", time.Now().UTC().Format(time.RFC3339Nano)))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}

// Close 刷盘并关闭日志文件。stdout 为终端或管道时 Sync 返回的 EINVAL/ENOTTY 不算错误。
func (l *Logger) Close() error {
	err := l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		err = nil
	}
	return errors.Join(err, l.closeFiles())
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
