package xconf

import (
	"fmt"
	"os"
	"sync"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const structTag = "koanf"

type source struct {
	path   string
	format Format

	mu sync.RWMutex
	k  *koanf.Koanf
}

// New 读取 YAML 或 JSON 配置文件，格式由扩展名决定。
func New(path string) (Config, error) {
	s := &source{path: path, format: FormatOf(path)}
	if s.format == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromBytes 从内存数据创建配置，data 为空时得到空配置。
func NewFromBytes(data []byte, format Format) (Config, error) {
	k, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	return &source{format: format, k: k}, nil
}

func parse(data []byte, format Format) (*koanf.Koanf, error) {
	parser, err := format.parser()
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if len(data) == 0 {
		return k, nil
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return k, nil
}

func (s *source) Koanf() *koanf.Koanf {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.k
}

func (s *source) Unmarshal(path string, target any) error {
	conf := koanf.UnmarshalConf{Tag: structTag}
	if err := s.Koanf().UnmarshalWithConf(path, target, conf); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

func (s *source) Reload() error {
	if s.path == "" {
		return ErrNotReloadable
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	k, err := parse(data, s.format)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.k = k
	s.mu.Unlock()
	return nil
}

func (s *source) Path() string { return s.path }
