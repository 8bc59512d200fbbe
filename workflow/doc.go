// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于共享状态的有向图执行引擎。

# 概述

StateGraph 以泛型状态 S 为核心：每个节点接收当前状态并返回一个局部更新，
引擎通过 Reducer 将更新合并进状态，然后沿普通边或条件边前进，直到 END。

# 核心类型

  - StateGraph[S]    — 图构建器（AddNode / AddEdge / AddConditionalEdges）
  - CompiledGraph[S] — 校验后的不可变图，Invoke 并发安全
  - Reducer[S]       — 状态合并函数，默认 LastValue
  - Observer         — 节点完成事件回调，用于指标采集
  - NodeError / RoutingError / ValidationError — 结构化错误

# 校验

Compile 会检查入口节点、边的端点、每个节点是否有出边以及可达性，
所有问题合并在一个 ValidationError 中返回。

# 执行

每个节点在独立的 OpenTelemetry span 中运行，panic 会被恢复为 NodeError。
WithStepLimit 限制单次执行的节点数，防止条件边构成的死循环。
*/
package workflow
