// Package config 提供 ModGuard 的配置加载。
//
// 配置按 默认值 → YAML 文件 → 兼容环境变量（OPENAI_API_KEY、PORT、
// FRONTEND_CORS_ORIGIN、DATABASE_URL）→ MODGUARD_* 环境变量 的顺序叠加。
package config
