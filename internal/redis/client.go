package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// RoomChannel is the pub/sub channel for one conversation's room.
func RoomChannel(conversationID int64) string {
	return fmt.Sprintf("chat:room:%d", conversationID)
}

// AdminChannel carries global events for all admin connections.
func AdminChannel() string {
	return "chat:admins"
}

// ConnChannel carries events addressed to a single connection.
func ConnChannel(connectionID string) string {
	return fmt.Sprintf("chat:conn:%s", connectionID)
}
