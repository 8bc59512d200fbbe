/*
包 migration 管理审核日志表 submission-result-logs 的 Schema 迁移，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

迁移 SQL 通过 embed.FS 内嵌，按方言分目录存放。DefaultMigrator 封装
Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info；CLI 为
modguard migrate 子命令提供格式化输出。SQLite 使用纯 Go 的
modernc.org/sqlite 驱动。
*/
package migration
