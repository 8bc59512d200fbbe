package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/modguard/config"
	"github.com/BaSui01/modguard/internal/cache"
	"github.com/BaSui01/modguard/moderation"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the moderation HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting ModGuard",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			ctx := cmd.Context()
			srv, err := NewServer(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to initialize server", zap.Error(err))
				return err
			}
			if err := srv.Run(ctx); err != nil {
				logger.Error("server exited with error", zap.Error(err))
				return err
			}
			logger.Info("ModGuard stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	return cmd
}

// =============================================================================
// 🔍 moderate 命令
// =============================================================================

type moderateOptions struct {
	configPath string
	text       string
	image      string
}

func moderateCmd() *cobra.Command {
	var opts moderateOptions
	cmd := &cobra.Command{
		Use:   "moderate",
		Short: "Moderate one text or image and print the result as JSON",
		Example: `  modguard moderate --text "some user comment"
  modguard moderate --image ./upload.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			// stdout 只输出结果 JSON，日志改写到 stderr
			cfg.Log.OutputPaths = []string{"stderr"}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			sub, err := opts.submission()
			if err != nil {
				return err
			}
			return runModerate(cmd, cfg, sub, logger)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	cmd.Flags().StringVar(&opts.text, "text", "", "Text to moderate")
	cmd.Flags().StringVar(&opts.image, "image", "", "Path of an image file to moderate")
	cmd.MarkFlagsMutuallyExclusive("text", "image")
	cmd.MarkFlagsOneRequired("text", "image")
	return cmd
}

// submission 把命令行参数转换为与 POST /submit 相同的提交
func (o moderateOptions) submission() (moderation.Submission, error) {
	if o.image == "" {
		return moderation.Submission{Type: string(moderation.KindText), Text: o.text}, nil
	}
	data, err := os.ReadFile(o.image)
	if err != nil {
		return moderation.Submission{}, fmt.Errorf("read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(o.image))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return moderation.Submission{
		Type: string(moderation.KindImage),
		File: &moderation.File{Data: data, Filename: filepath.Base(o.image), MIMEType: mimeType},
	}, nil
}

func runModerate(cmd *cobra.Command, cfg *config.Config, sub moderation.Submission, logger *zap.Logger) error {
	ctx := cmd.Context()

	var cacheMgr *cache.Manager
	if cfg.Rules.Source == "redis" {
		m, err := cache.NewManager(ctx, cacheConfig(cfg.Redis), logger)
		if err != nil {
			return err
		}
		defer m.Close()
		cacheMgr = m
	}

	model, err := buildModel(cfg.LLM, logger, nil)
	if err != nil {
		return err
	}
	pipeline, _, err := buildPipeline(cfg, model, cacheMgr, nil, logger)
	if err != nil {
		return err
	}

	res, err := pipeline.Moderate(ctx, sub)
	if err != nil {
		var ve *moderation.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid submission: %s", ve.Reason)
		}
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}

func printResult(w io.Writer, res moderation.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
