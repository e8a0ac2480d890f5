package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// governanceABI covers the single contract view the engine side-reads
// when a proposal is created
const governanceABI = `[{"name":"getProposal","type":"function","stateMutability":"view","inputs":[{"name":"proposalId","type":"uint256"}],"outputs":[{"name":"proposer","type":"address"},{"name":"description","type":"string"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"executed","type":"bool"}]}]`

// headerCacheSize bounds the block timestamp cache
const headerCacheSize = 4096

// ProposalMetadata is the contract-side detail of a governance proposal
// that is not carried in the creation event
type ProposalMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	Executed  bool
}

// Client wraps the Ethereum JSON-RPC client as the engine's log feed
type Client struct {
	ethClient *ethclient.Client
	rpcClient *rpc.Client
	endpoint  string
	logger    *zap.Logger

	govABI gethabi.ABI

	// Block timestamp cache, keyed by block hash so reorged blocks can
	// never serve a stale entry
	timeMu    sync.RWMutex
	timeCache map[common.Hash]time.Time
}

// Config holds client configuration
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewClient creates a new feed client
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	govABI, err := gethabi.JSON(strings.NewReader(governanceABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse governance ABI: %w", err)
	}

	// Create RPC client with timeout
	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	ethClient := ethclient.NewClient(rpcClient)

	client := &Client{
		ethClient: ethClient,
		rpcClient: rpcClient,
		endpoint:  cfg.Endpoint,
		logger:    logger,
		govABI:    govABI,
		timeCache: make(map[common.Hash]time.Time),
	}

	// Verify connection
	if err := client.Ping(ctx); err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to chain RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// LatestBlockNumber returns the feed head
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	blockNumber, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return blockNumber, nil
}

// BlockHash returns the canonical hash at the given height
func (c *Client) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	c.cacheHeaderTime(header)
	return header.Hash(), nil
}

// BlockTime returns the timestamp of the block with the given hash,
// served from cache when the header was already fetched
func (c *Client) BlockTime(ctx context.Context, hash common.Hash) (time.Time, error) {
	c.timeMu.RLock()
	ts, ok := c.timeCache[hash]
	c.timeMu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByHash(ctx, hash)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header %s: %w", hash.Hex(), err)
	}
	c.cacheHeaderTime(header)
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func (c *Client) cacheHeaderTime(header *types.Header) {
	c.timeMu.Lock()
	defer c.timeMu.Unlock()

	if len(c.timeCache) >= headerCacheSize {
		// Drop an arbitrary entry; the cache only needs to cover the
		// working set near the head
		for h := range c.timeCache {
			delete(c.timeCache, h)
			break
		}
	}
	c.timeCache[header.Hash()] = time.Unix(int64(header.Time), 0).UTC()
}

// FilterLogs returns logs emitted by the given contracts in the block
// range [fromBlock, toBlock], optionally narrowed by topic0 values
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics []common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topics) > 0 {
		query.Topics = [][]common.Hash{topics}
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs %d-%d: %w", fromBlock, toBlock, err)
	}
	return logs, nil
}

// ProposalMetadata side-reads proposal timing from the governance
// contract; the creation event only carries id, proposer and description
func (c *Client) ProposalMetadata(ctx context.Context, contract common.Address, proposalID *big.Int) (*ProposalMetadata, error) {
	input, err := c.govABI.Pack("getProposal", proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getProposal call: %w", err)
	}

	output, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("getProposal call failed for %s: %w", proposalID, err)
	}

	values, err := c.govABI.Unpack("getProposal", output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getProposal result: %w", err)
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected getProposal result arity: %d", len(values))
	}

	startTime, ok := values[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getProposal startTime type %T", values[2])
	}
	endTime, ok := values[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getProposal endTime type %T", values[3])
	}
	executed, ok := values[4].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected getProposal executed type %T", values[4])
	}

	return &ProposalMetadata{
		StartTime: time.Unix(startTime.Int64(), 0).UTC(),
		EndTime:   time.Unix(endTime.Int64(), 0).UTC(),
		Executed:  executed,
	}, nil
}

// BatchHeaders fetches multiple headers in a single batch request. The
// engine calls it before decoding a log range so the fetched timestamps
// land in the time cache and BlockTime never has to go per-hash.
func (c *Client) BatchHeaders(ctx context.Context, numbers []uint64) ([]*types.Header, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	headers := make([]*types.Header, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))

	for i, num := range numbers {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{fmt.Sprintf("0x%x", num), false},
			Result: &headers[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch call failed: %w", err)
	}

	// Check for individual errors
	for i, elem := range batch {
		if elem.Error != nil {
			c.logger.Error("failed to fetch header in batch",
				zap.Uint64("block_number", numbers[i]),
				zap.Error(elem.Error))
			return nil, fmt.Errorf("failed to fetch header %d: %w", numbers[i], elem.Error)
		}
		if headers[i] != nil {
			c.cacheHeaderTime(headers[i])
		}
	}

	return headers, nil
}
