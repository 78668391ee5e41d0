package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/tgifai/claun/internal/runner"
)

// Client talks to a running claun's control server.
type Client struct {
	base string
	hc   *client.Client
}

func NewClient(bind string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	base := strings.TrimRight(bind, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, hc: hc}, nil
}

func (c *Client) Status(ctx context.Context) (*runner.Status, error) {
	code, body, err := c.hc.Get(ctx, nil, c.base+"/status")
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	if code != consts.StatusOK {
		return nil, fmt.Errorf("get status: unexpected status %d: %s", code, body)
	}
	var st runner.Status
	if err := sonic.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

func (c *Client) Pause(ctx context.Context) (*CommandResponse, error) {
	return c.command(ctx, "pause")
}

func (c *Client) Resume(ctx context.Context) (*CommandResponse, error) {
	return c.command(ctx, "resume")
}

func (c *Client) RunNow(ctx context.Context) (*CommandResponse, error) {
	return c.command(ctx, "run")
}

// command posts to one of the command endpoints. A decoded error body is
// returned as an error alongside the response.
func (c *Client) command(ctx context.Context, name string) (*CommandResponse, error) {
	code, body, err := c.hc.Post(ctx, nil, c.base+"/"+name, &protocol.Args{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var resp CommandResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode response (status %d): %w", name, code, err)
	}
	if code >= consts.StatusBadRequest {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", code)
		}
		return &resp, fmt.Errorf("%s: %s", name, msg)
	}
	return &resp, nil
}
