// Package util 通用工具子包。
//
//   - xlru: 带 TTL 的泛型 LRU 缓存
package util
