package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client 往某个节点的 inbox 发消息
type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	c := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: c}
}

// Send 投递消息，非 200 视为投递失败
func (c *Client) Send(ctx context.Context, address string, msg *Message) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(fmt.Sprintf("http://%s/api/v1/messages", address))
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("send message to %s failed, status: %d", address, resp.StatusCode())
	}
	return nil
}
