package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/limyeri/howru-backend/internal/config"
	"github.com/limyeri/howru-backend/internal/model/chat"
)

// Store 是按用户+会话维度读写对话历史的文档库访问器。
type Store interface {
	// Append 追加一条消息，内容为空白时忽略。
	Append(ctx context.Context, msg chat.Message) error
	// Recent 返回该会话时间正序的最近 limit 条消息，limit<=0 返回全部。
	Recent(ctx context.Context, userCode int64, convID string, limit int) ([]chat.Message, error)
	// Window 返回 [start, end) 时间窗内时间正序的消息。
	Window(ctx context.Context, userCode int64, convID string, start, end time.Time) ([]chat.Message, error)
}

// MongoStore 基于 MongoDB 实现 Store。
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore 连接 MongoDB 并返回历史存储。
func NewMongoStore(ctx context.Context, cfg config.MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Close 释放底层连接。
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) filter(userCode int64, convID primitive.ObjectID) bson.M {
	return bson.M{"userCode": userCode, "convId": convID}
}

// ErrInvalidConvID 表示会话标识不是合法的 ObjectID。
var ErrInvalidConvID = errors.New("invalid conversation id")

// ParseConvID 校验并解析会话标识。
func ParseConvID(convID string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(convID))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w %q: %v", ErrInvalidConvID, convID, err)
	}
	return oid, nil
}

// Append 追加一条消息。
func (s *MongoStore) Append(ctx context.Context, msg chat.Message) error {
	if strings.TrimSpace(msg.Content) == "" {
		return nil
	}
	if msg.CreateAt.IsZero() {
		msg.CreateAt = time.Now()
	}

	doc := bson.M{
		"convId":   msg.ConvID,
		"userCode": msg.UserCode,
		"role":     msg.Role,
		"content":  msg.Content,
		"createAt": msg.CreateAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Recent 返回最近 limit 条消息（时间正序）。
func (s *MongoStore) Recent(ctx context.Context, userCode int64, convID string, limit int) ([]chat.Message, error) {
	oid, err := ParseConvID(convID)
	if err != nil {
		return nil, err
	}

	filter := s.filter(userCode, oid)

	if limit <= 0 {
		cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createAt", Value: 1}}))
		if err != nil {
			return nil, fmt.Errorf("failed to query history: %w", err)
		}
		return decodeMessages(ctx, cursor, false)
	}

	// 倒序取最近 limit 条，再反转为时间正序
	cursor, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createAt", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return decodeMessages(ctx, cursor, true)
}

// Window 返回 [start, end) 时间窗内的消息（时间正序）。
func (s *MongoStore) Window(ctx context.Context, userCode int64, convID string, start, end time.Time) ([]chat.Message, error) {
	oid, err := ParseConvID(convID)
	if err != nil {
		return nil, err
	}

	filter := s.filter(userCode, oid)
	filter["createAt"] = bson.M{"$gte": start, "$lt": end}

	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query history window: %w", err)
	}
	return decodeMessages(ctx, cursor, false)
}

func decodeMessages(ctx context.Context, cursor *mongo.Cursor, reverse bool) ([]chat.Message, error) {
	defer cursor.Close(ctx)

	var messages []chat.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	if reverse {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}
