// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package types 提供 ModGuard 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Context 传播：WithRequestID / WithRunID / WithTraceID / WithTenantID / WithUserID

# 错误工具链

  - AsError / IsErrorCode / IsRetryable / GetErrorCode
  - NewConfigurationError：启动时缺失凭据等配置错误
*/
package types
