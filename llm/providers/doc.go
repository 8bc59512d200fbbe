// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
包 providers 提供 OpenAI 兼容协议的公共适配层。

# 核心类型

  - OpenAICompat* 系列 — 请求/响应/多模态片段的线上结构体
  - HTTPClientConfig — 带重试的模型 HTTP 客户端配置

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI — 文本与 image_url 片段的统一转换
  - ToLLMChatResponse — OpenAI 兼容响应到 llm.ChatResponse 的转换
  - NewHTTPClient — 基于 retryablehttp 的客户端，日志接入 zap
*/
package providers
