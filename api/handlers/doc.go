// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 ModGuard HTTP API 的请求处理器实现。

# 核心类型

  - SubmitHandler      — POST /submit，解析 multipart / JSON / 表单提交，
    执行审核并写入审核日志
  - SubmissionsHandler — GET /submissions，分页查询审核日志
  - HealthHandler      — /health、/healthz、/ready、/version
  - Response           — 错误与查询接口使用的统一 JSON 信封
  - ResponseWriter     — 捕获状态码与响应大小，供中间件使用

# 错误映射

ToAPIError 把 moderation.ValidationError 映射为 400 VALIDATION_ERROR，
请求体超限映射为 413 PAYLOAD_TOO_LARGE，其余 types.Error 按错误码
映射 HTTP 状态码。审核结果本身直接序列化为
{analysis, classification, explanation?, label}。
*/
package handlers
