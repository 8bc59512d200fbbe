// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package rules 提供审核规则（提交类型 → 有序策略列表）及其来源。

规则对流水线是不透明数据，只会被序列化进分类提示词。序列化时键顺序固定为
text、image，其余键按字母序排列，保证提示词稳定。

# Provider

  - StaticProvider — 固定规则（默认 Default()）
  - FileProvider   — YAML / JSON 文件
  - RedisProvider  — 通过 internal/cache 读取，键不存在时回退
  - CachedProvider — expirable LRU 包装，按 TTL 缓存任意 Provider

FileWatcher 以轮询方式观察规则文件的修改时间，变化时回调，通常用来
调用 CachedProvider.Invalidate。
*/
package rules
