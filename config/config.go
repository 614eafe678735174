package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/ferrite-ci/ferrite-engine/utils"
)

// Config 引擎配置，从 toml 文件加载，缺省值在 Default 里
type Config struct {
	// NodeName worker 节点名，为空时使用 hostname
	NodeName string `toml:"node_name"`
	// ListenAddress master 模式的 http 监听地址
	ListenAddress string `toml:"listen_address"`
	// MasterAddress worker 模式连接的 master 地址
	MasterAddress string `toml:"master_address"`
	LogLevel      string `toml:"log_level"`
	// WorkRoot 所有 run 工作目录的根目录
	WorkRoot string `toml:"work_root"`
}

func Default() Config {
	name, _ := utils.GetMyHostname()
	return Config{
		NodeName:      name,
		ListenAddress: "0.0.0.0:8699",
		LogLevel:      "info",
		WorkRoot:      utils.DefaultWorkRoot(),
	}
}

// Load 从文件读取配置，文件不存在时返回缺省配置
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if level := os.Getenv("FERRITE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func DefaultPath() string {
	return filepath.Join(utils.DefaultConfigDir(), "engine.toml")
}
