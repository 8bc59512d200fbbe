// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层。

# Provider 抽象

核心接口是 [Provider]，包含补全、健康检查与名称。具体实现位于
llm/providers 子包（OpenAI 兼容协议）。

# ChatModel

[ChatModel] 把 Provider 包装成单次 "消息列表 -> 文本" 调用，固定
model / temperature / max tokens 参数，并通过 [WithCallObserver]
向指标系统报告每次调用。

# 多模态

[Message] 支持文本与 image_url 片段，图片通过 [ImageDataURL] 以
data URI 方式内联。
*/
package llm
