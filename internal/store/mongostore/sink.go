// Package mongostore 把审核日志写入 MongoDB 集合，作为 gorm 存储之外的文档型 sink。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/modguard/config"
	"github.com/BaSui01/modguard/moderation"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// Document 集合中的文档结构，空文本与空解释写为 null
type Document struct {
	Type           string    `bson:"type"`
	Text           *string   `bson:"text"`
	Analysis       string    `bson:"analysis"`
	Classification string    `bson:"classification"`
	Explanation    *string   `bson:"explanation"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// DocumentFromLog 转换审核日志
func DocumentFromLog(log moderation.SubmissionLog) Document {
	created := log.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return Document{
		Type:           log.Type,
		Text:           log.Text,
		Analysis:       log.Analysis,
		Classification: log.Classification,
		Explanation:    log.Explanation,
		CreatedAt:      created,
	}
}

// Inserter 是 *mongo.Collection 的最小子集，便于测试替换
type Inserter interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

// Sink 实现 moderation.ResultSink
type Sink struct {
	client  *mongo.Client
	coll    Inserter
	timeout time.Duration
	logger  *zap.Logger
}

var _ moderation.ResultSink = (*Sink)(nil)

// NewSink 基于已有集合创建 sink，client 可为 nil
func NewSink(coll Inserter, timeout time.Duration, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		coll:    coll,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "mongo_sink")),
	}
}

// Connect 连接 MongoDB 并校验可用性
func Connect(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Sink, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is empty")
	}
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg.Timeout))
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := NewSink(client.Database(cfg.Database).Collection(cfg.Collection), cfg.Timeout, logger)
	s.client = client
	s.logger.Info("mongo sink connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection),
	)
	return s, nil
}

func pingTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Record 插入一条文档
func (s *Sink) Record(ctx context.Context, log moderation.SubmissionLog) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.coll.InsertOne(ctx, DocumentFromLog(log)); err != nil {
		return fmt.Errorf("insert submission document: %w", err)
	}
	return nil
}

// Ping 用于就绪检查
func (s *Sink) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (s *Sink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
