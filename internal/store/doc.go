// Package store 持久化审核日志。
//
// SubmissionStore 把每次审核结果写入 submission-result-logs 表（gorm，
// 支持 postgres / mysql / sqlite），并提供按类型与分类过滤的分页查询。
// 文档型存储见子包 mongostore。
package store
