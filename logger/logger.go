package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		TimestampFormat: "2006-01-02 15:04:05",
		ShowFullLevel:   true,
	})
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(os.Stdout)
}

type Logger struct {
	logDir string
}

// Init 返回一个可链式配置的 Logger
func Init() *Logger {
	return &Logger{}
}

// ToStdout 只输出到标准输出
func (l *Logger) ToStdout() *Logger {
	log.SetOutput(os.Stdout)
	return l
}

// ToStdoutAndFile 同时输出到标准输出和文件，日志文件按天命名
func (l *Logger) ToStdoutAndFile() *Logger {
	if l.logDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Errorf("get user home dir failed: %s", err.Error())
			return l
		}
		l.logDir = filepath.Join(homeDir, consts.PIPELINE_DIR_NAME, consts.LOG_DIR_NAME)
	}
	if err := os.MkdirAll(l.logDir, os.ModePerm); err != nil {
		log.Errorf("create log dir failed: %s", err.Error())
		return l
	}
	filename := filepath.Join(l.logDir, time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Errorf("open log file failed: %s", err.Error())
		return l
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return l
}

// SetLogDir 指定日志文件目录
func (l *Logger) SetLogDir(dir string) *Logger {
	l.logDir = dir
	return l
}

// SetLevel 设置日志级别，支持 trace/debug/info/warn/error
func (l *Logger) SetLevel(level string) *Logger {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level: %s, use info", level)
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
	return l
}

func Trace(args ...any) {
	log.Trace(args...)
}

func Tracef(format string, args ...any) {
	log.Tracef(format, args...)
}

func Debug(args ...any) {
	log.Debug(args...)
}

func Debugf(format string, args ...any) {
	log.Debugf(format, args...)
}

func Info(args ...any) {
	log.Info(args...)
}

func Infof(format string, args ...any) {
	log.Infof(format, args...)
}

func Warn(args ...any) {
	log.Warn(args...)
}

func Warnf(format string, args ...any) {
	log.Warnf(format, args...)
}

func Error(args ...any) {
	log.Error(args...)
}

func Errorf(format string, args ...any) {
	log.Errorf(format, args...)
}
