// Package mongostore MongoDB 知识库存储
//
// 每条记忆是 memories 集合中的一个文档，_id 即记忆 ID。
// 标记与删除把 processed != true 写进过滤条件，依赖单文档写的原子性完成比较并交换。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"kb-auditor/internal/shared/storage"
)

const ColMemories = "memories"

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore 连接 uri 指向的部署并使用 dbName 库；建索引失败只记日志
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}

	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("[Mongo/Store] WARNING: ensure indexes on %s.%s: %v", dbName, ColMemories, err)
	}

	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) col() *mongo.Collection {
	return s.db.Collection(ColMemories)
}

// ensureIndexes 最近对话按 created_at 倒序拉取，processed 用于筛掉已审核的记忆
func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []bson.D{
		{{Key: "created_at", Value: -1}},
		{{Key: "processed", Value: 1}},
	}
	for _, keys := range indexes {
		if _, err := s.col().Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("create index on %s: %w", ColMemories, err)
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
