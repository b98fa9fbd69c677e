package clients

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/gateway"
	"github.com/mcdev12/tourney-auction/go/internal/models"
)

// GatewayClient reads the auction gateway's REST endpoints. Dashboards and tooling use it
// where a websocket is overkill.
type GatewayClient struct {
	*BaseClient
}

func NewGatewayClient(baseURL string) *GatewayClient {
	c := &GatewayClient{BaseClient: NewBaseClient(baseURL)}
	c.SetHeader("Accept", "application/json")
	return c
}

// State returns the current snapshot of one auction.
func (c *GatewayClient) State(ctx context.Context, key models.PartitionKey) (*coordinator.Snapshot, error) {
	endpoint := fmt.Sprintf("/api/auctions/%s/%s/state", key.TournamentID, url.PathEscape(key.Category))
	var snap coordinator.Snapshot
	if err := c.GetJSON(ctx, endpoint, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Stats returns connection and broker statistics.
func (c *GatewayClient) Stats(ctx context.Context) (*gateway.StatsResponse, error) {
	var stats gateway.StatsResponse
	if err := c.GetJSON(ctx, "/ws/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
