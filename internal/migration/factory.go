package migration

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BaSui01/modguard/config"
)

// NewMigratorFromDatabaseConfig 按应用的数据库配置创建迁移器
func NewMigratorFromDatabaseConfig(dbCfg config.DatabaseConfig) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	dbURL := DatabaseURL(dbType, dbCfg)
	if dbURL == "" {
		return nil, fmt.Errorf("database %s is not configured", dbType)
	}
	return NewMigrator(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    DefaultMigrationsTable,
	})
}

// DatabaseURL 生成 golang-migrate 使用的连接串；配置了 URL 时以其为准
func DatabaseURL(dbType DatabaseType, d config.DatabaseConfig) string {
	switch dbType {
	case DatabaseTypePostgres:
		if d.URL != "" {
			return d.URL
		}
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:     "/" + d.Name,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String()
	case DatabaseTypeMySQL:
		if d.URL != "" {
			return withMultiStatements(strings.TrimPrefix(d.URL, "mysql://"))
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case DatabaseTypeSQLite:
		path := d.Name
		if d.URL != "" {
			path = d.URL
		}
		return sqliteURL(path)
	default:
		return ""
	}
}

// withMultiStatements golang-migrate 的 mysql 驱动需要 multiStatements=true
func withMultiStatements(dsn string) string {
	if strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}

func sqliteURL(path string) string {
	if path == "" {
		return ""
	}
	for _, prefix := range []string{"sqlite3://", "sqlite://"} {
		path = strings.TrimPrefix(path, prefix)
	}
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path
	}
	return "file:" + path + "?mode=rwc"
}
