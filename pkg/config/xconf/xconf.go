package xconf

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

var (
	ErrUnsupportedFormat = errors.New("xconf: unsupported format")
	ErrRead              = errors.New("xconf: read config")
	ErrParse             = errors.New("xconf: parse config")
	ErrDecode            = errors.New("xconf: decode config")
	// ErrNotReloadable 由字节创建的配置没有文件可以重读或监视。
	ErrNotReloadable = errors.New("xconf: config has no backing file")
)

// Format 配置格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf 按扩展名判断格式，.yaml/.yml/.json 以外返回空串。
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return ""
}

func (f Format) parser() (koanf.Parser, error) {
	switch f {
	case FormatYAML:
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	}
	return nil, ErrUnsupportedFormat
}

// Config 一份已加载的配置。
type Config interface {
	// Koanf 返回当前快照，Reload 之后需要重新获取。
	Koanf() *koanf.Koanf

	// Unmarshal 把 path 下的键解码到 target，path 为空表示整份配置。
	// target 中已有的值在配置缺失对应键时保留。
	Unmarshal(path string, target any) error

	// Reload 重读文件，解析失败时保留旧内容。
	Reload() error

	// Path 由字节创建时为空。
	Path() string
}
