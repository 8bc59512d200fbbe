// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 同时实现 moderation.RunObserver 与 workflow.Observer，并提供
RecordLLMCall（可直接传给 llm.WithCallObserver）、RecordHTTPRequest、
RecordSinkWrite 与 RecordDBConnections。所有指标注册在调用方传入的
prometheus.Registerer 上，测试中可以使用独立的注册表。
*/
package metrics
