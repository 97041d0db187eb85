// Package xconf 用 koanf 读取 YAML/JSON 配置文件，并在文件变化时重载。
//
//	src, err := xconf.New("/etc/xbus/xbus.yaml")
//	if err != nil {
//		return err
//	}
//	cfg := defaults()
//	if err := src.Unmarshal("", &cfg); err != nil {
//		return err
//	}
//
// Watcher.Run 阻塞到 ctx 取消，可以直接交给 xrun 作为服务运行。
package xconf
