// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package main 提供 ModGuard 内容审核服务的可执行入口。

# 子命令

  - serve     启动 HTTP API（/、/submit、/submissions、/health、/ready、/version）与独立的 /metrics 端口
  - moderate  对单条文本或图片执行一次审核并把结果 JSON 写到 stdout
  - migrate   submission-result-logs 表的版本化迁移（up/down/reset/status/version/goto/force）
  - health    请求运行中服务的 /health
  - version   打印构建信息

# 中间件链

Recovery → RequestID → OTelTracing → Metrics → SecurityHeaders → RequestLogger →
CORS → RateLimiter → Auth（API Key 与 JWT，可同时启用）。

Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
