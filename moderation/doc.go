// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package moderation 实现内容审核流水线：分析 → 分类 → （可选）解释。

# 概述

Pipeline 基于 workflow.StateGraph 编排三个阶段，每个阶段调用一次生成模型。
任何单次模型调用失败都不会中断流水线，而是由阶段自身降级为固定默认值：

  - 分析失败   → analysis = ""
  - 分类失败   → classification = "flagged"
  - 解释失败   → 固定的兜底说明

引擎层面的异常（不支持的输入类型、路由缺陷、panic、步数超限）统一转换为
FailSafeResult，调用方永远得到一个结果。

# 核心类型

  - ModerationInput / Submission — 已校验的输入与未校验的原始提交
  - PipelineState               — 按字段掩码合并的运行状态
  - Outcome[T]                  — OK / Recover 显式区分降级结果
  - StageContext                — 每次运行传给阶段的模型、规则与日志
  - RoutingPolicy               — random / always / never 三种解释策略
  - ResultSink / Sinks          — 提交日志持久化（并发扇出）
*/
package moderation
