package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type CommandLineArgs struct {
	ConfigPath string
}

/*
*
[innodb]
data_dir                = data
page_size               = 16384
buffer_pool_pages       = 1024
redo_log_dir            = redo
log_compression         = snappy
flush_log_at_trx_commit = 1
validate_lists          = true

[logs]
log_error = logs/error.log
log_infos = logs/info.log
log_level = info
*/
type Cfg struct {
	Raw *ini.File

	// logs
	LogError string `default:"" yaml:"log_error" json:"log_error,omitempty"`
	LogInfos string `default:"" yaml:"log_infos" json:"log_infos,omitempty"`
	LogLevel string `default:"info" yaml:"log_level" json:"log_level,omitempty"`

	// innodb
	InnodbDataDir             string `default:"data" yaml:"innodb_data_dir" json:"innodb_data_dir,omitempty"`
	InnodbPageSize            int    `default:"16384" yaml:"innodb_page_size" json:"innodb_page_size,omitempty"`
	InnodbBufferPoolPages     int    `default:"1024" yaml:"innodb_buffer_pool_pages" json:"innodb_buffer_pool_pages,omitempty"`
	InnodbRedoLogDir          string `default:"redo" yaml:"innodb_redo_log_dir" json:"innodb_redo_log_dir,omitempty"`
	InnodbLogCompression      string `default:"none" yaml:"innodb_log_compression" json:"innodb_log_compression,omitempty"`
	InnodbFlushLogAtTrxCommit int    `default:"1" yaml:"innodb_flush_log_at_trx_commit" json:"innodb_flush_log_at_trx_commit,omitempty"`
	InnodbValidateLists       bool   `default:"false" yaml:"innodb_validate_lists" json:"innodb_validate_lists,omitempty"`
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:      ini.Empty(),
		LogLevel: "info",
		// InnoDB 默认配置
		InnodbDataDir:             "data",
		InnodbPageSize:            common.UNIV_PAGE_SIZE_DEF,
		InnodbBufferPoolPages:     1024,
		InnodbRedoLogDir:          "redo",
		InnodbLogCompression:      "none",
		InnodbFlushLogAtTrxCommit: 1,
	}
}

// Load reads the file named by args on top of the defaults. A .toml file is
// parsed with go-toml, anything else as ini. A missing file leaves the
// defaults in place.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	path := "conf/my.ini"
	if args != nil && args.ConfigPath != "" {
		path = args.ConfigPath
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debugf("配置文件不存在: %s，使用默认配置", path)
		return cfg, cfg.Validate()
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		tree, err := toml.LoadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		cfg.parseToml(tree)
	} else {
		file, err := ini.Load(path)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		cfg.Raw = file
		cfg.parseInnodbCfg(file.Section("innodb"))
		cfg.parseLogsCfg(file.Section("logs"))
	}
	logger.Debugf("成功加载配置文件: %s", path)
	return cfg, cfg.Validate()
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) string {
	if section == nil {
		return defaultValue
	}
	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		value = defaultValue
	}
	return value
}

// GetString 获取配置项的字符串值, key 形如 "innodb.data_dir"
func (cfg *Cfg) GetString(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return ""
	}
	return valueAsString(cfg.Raw.Section(parts[0]), strings.Join(parts[1:], "."), "")
}

// GetInt 获取配置项的整数值
func (cfg *Cfg) GetInt(key string) int {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return 0
	}
	return cfg.Raw.Section(parts[0]).Key(strings.Join(parts[1:], ".")).MustInt(0)
}

func (cfg *Cfg) parseInnodbCfg(section *ini.Section) {
	cfg.InnodbDataDir = valueAsString(section, "data_dir", cfg.InnodbDataDir)
	cfg.InnodbPageSize = section.Key("page_size").MustInt(cfg.InnodbPageSize)
	cfg.InnodbBufferPoolPages = section.Key("buffer_pool_pages").MustInt(cfg.InnodbBufferPoolPages)
	cfg.InnodbRedoLogDir = valueAsString(section, "redo_log_dir", cfg.InnodbRedoLogDir)
	cfg.InnodbLogCompression = valueAsString(section, "log_compression", cfg.InnodbLogCompression)
	cfg.InnodbFlushLogAtTrxCommit = section.Key("flush_log_at_trx_commit").MustInt(cfg.InnodbFlushLogAtTrxCommit)
	cfg.InnodbValidateLists = section.Key("validate_lists").MustBool(cfg.InnodbValidateLists)
}

func (cfg *Cfg) parseLogsCfg(section *ini.Section) {
	cfg.LogError = valueAsString(section, "log_error", cfg.LogError)
	cfg.LogInfos = valueAsString(section, "log_infos", cfg.LogInfos)
	cfg.LogLevel = normalizeLevel(valueAsString(section, "log_level", cfg.LogLevel))
}

func (cfg *Cfg) parseToml(tree *toml.Tree) {
	str := func(key string, def string) string {
		if v, ok := tree.Get(key).(string); ok && v != "" {
			return v
		}
		return def
	}
	num := func(key string, def int) int {
		if v, ok := tree.Get(key).(int64); ok {
			return int(v)
		}
		return def
	}

	cfg.InnodbDataDir = str("innodb.data_dir", cfg.InnodbDataDir)
	cfg.InnodbPageSize = num("innodb.page_size", cfg.InnodbPageSize)
	cfg.InnodbBufferPoolPages = num("innodb.buffer_pool_pages", cfg.InnodbBufferPoolPages)
	cfg.InnodbRedoLogDir = str("innodb.redo_log_dir", cfg.InnodbRedoLogDir)
	cfg.InnodbLogCompression = str("innodb.log_compression", cfg.InnodbLogCompression)
	cfg.InnodbFlushLogAtTrxCommit = num("innodb.flush_log_at_trx_commit", cfg.InnodbFlushLogAtTrxCommit)
	if v, ok := tree.Get("innodb.validate_lists").(bool); ok {
		cfg.InnodbValidateLists = v
	}
	cfg.LogError = str("logs.log_error", cfg.LogError)
	cfg.LogInfos = str("logs.log_infos", cfg.LogInfos)
	cfg.LogLevel = normalizeLevel(str("logs.log_level", cfg.LogLevel))
}

func normalizeLevel(level string) string {
	l := strings.ToLower(level)
	switch l {
	case "debug", "info", "warn", "error", "fatal", "panic":
		return l
	}
	logger.Debugf("警告: 无效的日志级别 '%s', 使用默认级别 'info'", level)
	return "info"
}

// Validate checks the values the storage layers cannot work with.
func (cfg *Cfg) Validate() error {
	size := cfg.InnodbPageSize
	if size < common.UNIV_PAGE_SIZE_MIN || size > common.UNIV_PAGE_SIZE_MAX || size&(size-1) != 0 {
		return errors.Wrapf(ErrInvalidConfig, "innodb page_size %d", size)
	}
	if cfg.InnodbBufferPoolPages <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "innodb buffer_pool_pages %d", cfg.InnodbBufferPoolPages)
	}
	if _, err := logs.ParseCompression(cfg.InnodbLogCompression); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "innodb log_compression %q", cfg.InnodbLogCompression)
	}
	return nil
}

// RedoLogCompression returns the configured redo frame codec.
func (cfg *Cfg) RedoLogCompression() logs.Compression {
	c, _ := logs.ParseCompression(cfg.InnodbLogCompression)
	return c
}

// LogConfig returns the logger settings.
func (cfg *Cfg) LogConfig() logger.LogConfig {
	return logger.LogConfig{
		ErrorLogPath: cfg.LogError,
		InfoLogPath:  cfg.LogInfos,
		LogLevel:     cfg.LogLevel,
	}
}
