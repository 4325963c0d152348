package chat

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role 显式标记消息的发言方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是落库的单条对话消息，写入后不可变。
type Message struct {
	ID       primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ConvID   primitive.ObjectID `json:"convId" bson:"convId"`
	UserCode int64              `json:"userCode" bson:"userCode"`
	Role     Role               `json:"role" bson:"role"`
	Content  string             `json:"content" bson:"content"`
	CreateAt time.Time          `json:"createAt" bson:"createAt"`
}
