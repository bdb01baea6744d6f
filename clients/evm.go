package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/omni402/omnitab/chains"
)

var _ ReceiptFetcher = (*EVMReader)(nil)

// EVMReader reads transaction receipts from one EVM chain over JSON-RPC.
// Every call is bounded by the configured timeout so a slow endpoint cannot
// hang a verification request.
type EVMReader struct {
	chainID int64
	rpcURL  string
	client  *ethclient.Client
	timeout time.Duration
}

// NewEVMReader dials the chain's RPC endpoint.
func NewEVMReader(cfg chains.ChainConfig, timeout time.Duration) (*EVMReader, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", cfg.Name, err)
	}

	return &EVMReader{
		chainID: cfg.ChainID,
		rpcURL:  cfg.RPCURL,
		client:  client,
		timeout: timeout,
	}, nil
}

// TransactionReceipt implements ReceiptFetcher. Returns ethereum.NotFound
// when the transaction is unknown to the chain.
func (r *EVMReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.TransactionReceipt(callCtx, txHash)
}

// ChainID returns the chain this reader is bound to.
func (r *EVMReader) ChainID() int64 {
	return r.chainID
}

// Close releases the underlying RPC connection.
func (r *EVMReader) Close() {
	r.client.Close()
}
