package client

import (
	"context"
	"net/http"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/buildinfo"
)

func (c *Client) Info(ctx context.Context) (*buildinfo.Info, error) {
	var info buildinfo.Info
	if _, err := c.request(ctx, http.MethodGet, api.AboutRoute, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
