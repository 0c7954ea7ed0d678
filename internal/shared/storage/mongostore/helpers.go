package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/storage"
)

func wrapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	default:
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
}

// findMemories 解码游标中的全部记忆，无结果时返回空切片
func findMemories(ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*model.Memory, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	memories := []*model.Memory{}
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, wrapError(err)
	}
	return memories, nil
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

// unprocessed 只匹配 processed 不为 true 的文档，字段缺失也算未处理
func unprocessed(id string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "processed", Value: bson.D{{Key: "$ne", Value: true}}},
	}
}
