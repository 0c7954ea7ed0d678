package mongostore

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/storage"
)

// AddConversation 写入一条对话
func (s *Store) AddConversation(ctx context.Context, m *model.Memory) error {
	doc := *m
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	_, err := s.col().InsertOne(ctx, &doc)
	return wrapError(err)
}

// GetMemory 按 ID 读取记忆
func (s *Store) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	var m model.Memory
	if err := s.col().FindOne(ctx, byID(id)).Decode(&m); err != nil {
		return nil, wrapError(err)
	}
	return &m, nil
}

// SetRating 设置用户评分
func (s *Store) SetRating(ctx context.Context, id string, rating float64) error {
	res, err := s.col().UpdateOne(ctx, byID(id), bson.D{{Key: "$set", Value: bson.D{{Key: "rating", Value: rating}}}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetRecentConversations 返回最近的对话，最新在前
func (s *Store) GetRecentConversations(ctx context.Context, limit int) ([]*model.Memory, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return findMemories(ctx, s.col(), bson.D{}, opts)
}

// flagStatus 读取状态字段；记忆不存在时返回 nil
func (s *Store) flagStatus(ctx context.Context, id string) (*model.Memory, error) {
	opts := options.FindOne().SetProjection(bson.D{
		{Key: "processed", Value: 1},
		{Key: "is_flagged", Value: 1},
		{Key: "is_approved", Value: 1},
	})
	var m model.Memory
	err := s.col().FindOne(ctx, byID(id), opts).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(err)
	}
	return &m, nil
}

// IsAlreadyProcessed 记忆不存在时视为已处理
func (s *Store) IsAlreadyProcessed(ctx context.Context, id string) (bool, error) {
	m, err := s.flagStatus(ctx, id)
	if err != nil {
		return false, err
	}
	return m == nil || m.Processed, nil
}

func (s *Store) IsFlagged(ctx context.Context, id string) (bool, error) {
	m, err := s.flagStatus(ctx, id)
	if err != nil || m == nil {
		return false, err
	}
	return m.IsFlagged, nil
}

func (s *Store) IsApproved(ctx context.Context, id string) (bool, error) {
	m, err := s.flagStatus(ctx, id)
	if err != nil || m == nil {
		return false, err
	}
	return m.IsApproved, nil
}

// AtomicCheckAndFlag 单文档条件更新
func (s *Store) AtomicCheckAndFlag(ctx context.Context, id, reason string, confidence float64) (bool, error) {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "is_flagged", Value: true},
		{Key: "flag_reason", Value: reason},
		{Key: "flag_confidence", Value: confidence},
		{Key: "processed", Value: true},
	}}}
	res, err := s.col().UpdateOne(ctx, unprocessed(id), update)
	if err != nil {
		return false, wrapError(err)
	}
	return res.ModifiedCount == 1, nil
}

// AtomicCheckAndDelete 单文档条件删除
func (s *Store) AtomicCheckAndDelete(ctx context.Context, id string) (bool, error) {
	res, err := s.col().DeleteOne(ctx, unprocessed(id))
	if err != nil {
		return false, wrapError(err)
	}
	return res.DeletedCount == 1, nil
}

// DeleteMemory 无条件删除，记忆不存在时不报错
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.col().DeleteOne(ctx, byID(id))
	return wrapError(err)
}

// AddObservations 使用 $addToSet 去重追加
func (s *Store) AddObservations(ctx context.Context, id string, observations []string) error {
	set := bson.D{}
	if slices.Contains(observations, model.ObservationManuallyApproved) {
		set = append(set, bson.E{Key: "is_approved", Value: true})
	}
	update := bson.D{{Key: "$addToSet", Value: bson.D{
		{Key: "observations", Value: bson.D{{Key: "$each", Value: observations}}},
	}}}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}

	res, err := s.col().UpdateOne(ctx, byID(id), update)
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
