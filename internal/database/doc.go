// Copyright (c) ModGuard Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库打开与连接池管理。

Open 根据 config.DatabaseConfig 选择 postgres、mysql 或 sqlite 方言，
创建 PoolManager 并立即 Ping，保证配置错误在启动阶段暴露。
PoolManager 负责连接池参数、后台健康检查与关闭；每次健康检查后
通过 StatsFunc 上报打开与空闲连接数，供 Prometheus 指标使用。
*/
package database
