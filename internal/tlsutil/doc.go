// Package tlsutil 提供集中式 TLS 配置，
// 为模型 API 客户端和 HTTPS 监听器提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
