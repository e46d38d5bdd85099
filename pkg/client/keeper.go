package client

import (
	"context"

	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/ticket"
)

// StartKeeper runs a background refresher for the client's app ticket. Each
// successful refresh becomes the client's signing ticket; a failed refresh
// keeps the previous one. The keeper stops when ctx is cancelled.
func (c *Client) StartKeeper(ctx context.Context, opts ticket.KeeperOptions) *ticket.Keeper {
	keeper := ticket.NewKeeper(func(ctx context.Context) (*core.Ticket, error) {
		return c.AppTicket(ctx)
	}, opts)
	keeper.Start(ctx)
	return keeper
}
