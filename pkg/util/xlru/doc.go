// Package xlru 是基于 hashicorp/golang-lru/v2 的泛型 LRU 缓存，条目可带 TTL。
package xlru
