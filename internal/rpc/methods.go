package rpc

import "context"

// StatusResult is the subset of the node status response this client
// exposes.
type StatusResult struct {
	NodeInfo NodeInfo `json:"node_info"`
	SyncInfo SyncInfo `json:"sync_info"`
}

// NodeInfo describes the remote node.
type NodeInfo struct {
	ID         string `json:"id"`
	ListenAddr string `json:"listen_addr"`
	Network    string `json:"network"`
	Version    string `json:"version"`
	Moniker    string `json:"moniker"`
}

// SyncInfo describes the remote node's sync state.
type SyncInfo struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockHeight string `json:"latest_block_height"`
	LatestBlockTime   string `json:"latest_block_time"`
	CatchingUp        bool   `json:"catching_up"`
}

// NetInfoResult is the subset of the network info response this client
// exposes.
type NetInfoResult struct {
	Listening bool     `json:"listening"`
	Listeners []string `json:"listeners"`
	NPeers    string   `json:"n_peers"`
}

// Status queries the node status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	result := &StatusResult{}
	if err := c.Call(ctx, "status", nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health checks node health; a nil error means the node is up.
func (c *Client) Health(ctx context.Context) error {
	return c.Call(ctx, "health", nil, nil)
}

// NetInfo queries network information.
func (c *Client) NetInfo(ctx context.Context) (*NetInfoResult, error) {
	result := &NetInfoResult{}
	if err := c.Call(ctx, "net_info", nil, result); err != nil {
		return nil, err
	}
	return result, nil
}
