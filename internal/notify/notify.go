// Package notify 通过 Redis Pub/Sub 向用户推送消息，API 的 WebSocket 负责转发给前端。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// 消息类型，前端按 type 分发。
const (
	TypeSheetExport    = "sheet_export"
	TypeUploadProgress = "upload_progress"

	// TypeSubscribed is sent once the websocket is listening on the user's channel.
	TypeSubscribed = "subscribed"
)

// SheetExportMessage 是导出任务的完成或失败通知。
type SheetExportMessage struct {
	Type          string  `json:"type"`
	Status        string  `json:"status"`
	ExportID      uint    `json:"export_id"`
	CorrelationID string  `json:"correlation_id"`
	ErrorCode     int     `json:"error_code"`
	ErrorMessage  string  `json:"error_message"`
	MissingPairs  []int64 `json:"missing_pairs,omitempty"`
}

// UploadProgressMessage reports a content upload percentage between 0 and 100.
// A non-zero ErrorCode ends the upload without an item.
type UploadProgressMessage struct {
	Type          string `json:"type"`
	UploadID      string `json:"upload_id"`
	CorrelationID string `json:"correlation_id"`
	Progress      int    `json:"progress"`
	ErrorCode     int    `json:"error_code,omitempty"`
}

// Publisher is the slice of the redis client used to publish.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Channel 返回用户的通知频道名。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// Send marshals msg and publishes it on the user's channel.
func Send(ctx context.Context, pub Publisher, userID uint, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
