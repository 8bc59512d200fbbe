package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/modguard/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

type migrateFlags struct {
	configPath string
	dbType     string
	dbURL      string
}

func migrateCmd() *cobra.Command {
	var flags migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Manage the submission-result-logs schema.

Connection settings come from the database section of the config file
(or DATABASE_URL); --db-type and --db-url override them.`,
		Example: `  modguard migrate up
  modguard migrate up --config /etc/modguard/config.yaml
  modguard migrate status
  modguard migrate goto 1
  modguard migrate force 0`,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&flags.dbType, "db-type", "", "Database type: postgres, mysql, sqlite")
	cmd.PersistentFlags().StringVar(&flags.dbURL, "db-url", "", "Database connection URL")

	cmd.AddCommand(
		migrateSubCmd(&flags, "up", "Apply all pending migrations", cobra.NoArgs,
			func(ctx context.Context, cli *migration.CLI, _ []string) error { return cli.RunUp(ctx) }),
		migrateSubCmd(&flags, "down", "Roll back the last migration", cobra.NoArgs,
			func(ctx context.Context, cli *migration.CLI, _ []string) error { return cli.RunDown(ctx) }),
		migrateSubCmd(&flags, "reset", "Roll back all migrations and re-apply them", cobra.NoArgs,
			func(ctx context.Context, cli *migration.CLI, _ []string) error { return cli.RunReset(ctx) }),
		migrateSubCmd(&flags, "status", "Show migration status", cobra.NoArgs,
			func(ctx context.Context, cli *migration.CLI, _ []string) error { return cli.RunStatus(ctx) }),
		migrateSubCmd(&flags, "version", "Show the current migration version", cobra.NoArgs,
			func(ctx context.Context, cli *migration.CLI, _ []string) error { return cli.RunVersion(ctx) }),
		migrateSubCmd(&flags, "goto <version>", "Migrate up or down to a specific version", cobra.ExactArgs(1),
			func(ctx context.Context, cli *migration.CLI, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunGoto(ctx, uint(v))
			}),
		migrateSubCmd(&flags, "force <version>", "Force the recorded version and clear the dirty flag", cobra.ExactArgs(1),
			func(ctx context.Context, cli *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunForce(ctx, v)
			}),
	)
	return cmd
}

type migrateAction func(ctx context.Context, cli *migration.CLI, args []string) error

func migrateSubCmd(flags *migrateFlags, use, short string, args cobra.PositionalArgs, action migrateAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, err := flags.newMigrator()
			if err != nil {
				return fmt.Errorf("failed to create migrator: %w", err)
			}
			defer migrator.Close()

			cli := migration.NewCLI(migrator)
			cli.SetOutput(cmd.OutOrStdout())
			return action(cmd.Context(), cli, args)
		},
	}
}

// newMigrator 命令行同时给出 --db-type 与 --db-url 时不读取配置文件
func (f *migrateFlags) newMigrator() (*migration.DefaultMigrator, error) {
	if f.dbType != "" && f.dbURL != "" {
		dbType, err := migration.ParseDatabaseType(f.dbType)
		if err != nil {
			return nil, err
		}
		return migration.NewMigrator(&migration.Config{
			DatabaseType: dbType,
			DatabaseURL:  f.dbURL,
			TableName:    migration.DefaultMigrationsTable,
		})
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dbType != "" {
		cfg.Database.Driver = f.dbType
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}
