// Package publish subscribes to a decoder's published BlockUpdate feed
// over JSON-RPC and reconstructs a local wirestate.State mirror,
// adapted from the teacher's streams/jsonrpc/client package: the same
// full/diff subscription protocol and exponential-backoff reconnect
// loop, carrying per-pool rather than per-protocol-instance state.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defistate/stream-decoder/component"
	"github.com/defistate/stream-decoder/statediff"
	"github.com/defistate/stream-decoder/wirestate"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	RPCNamespace              = "decoder"
	BlockStreamSubscribeMethod = "subscribeBlockStream"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StatePatcherFunc applies a diff to a previous state, producing the
// next one.
type StatePatcherFunc func(prevState *wirestate.State, diff *statediff.StateDiff) (newState *wirestate.State, err error)

// DecoderFunc decodes a schema-tagged raw payload into its typed form.
type DecoderFunc func(schema string, data json.RawMessage) (any, error)

// Config holds the configuration for a publish Client.
type Config struct {
	URL              string
	Logger           Logger
	BufferSize       uint
	StatePatcher     StatePatcherFunc
	StateDecoder     DecoderFunc
	StateDiffDecoder DecoderFunc
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.StatePatcher == nil {
		return errors.New("config: StatePatcher is required")
	}
	if c.StateDecoder == nil {
		return errors.New("config: StateDecoder is required")
	}
	if c.StateDiffDecoder == nil {
		return errors.New("config: StateDiffDecoder is required")
	}
	return nil
}

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamProcessor handles parsing subscription events and maintaining
// the latest reconstructed state, decoupled from the networking layer.
type StreamProcessor struct {
	lastState        *wirestate.State
	statePatcher     StatePatcherFunc
	stateDecoder     DecoderFunc
	stateDiffDecoder DecoderFunc
	stateCh          chan *wirestate.State
	logger           Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, statePatcher StatePatcherFunc, stateDecoder, stateDiffDecoder DecoderFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:           logger,
		stateCh:          make(chan *wirestate.State, bufferSize),
		statePatcher:     statePatcher,
		stateDecoder:     stateDecoder,
		stateDiffDecoder: stateDiffDecoder,
	}
}

// State returns a read-only channel of reconstructed states.
func (sp *StreamProcessor) State() <-chan *wirestate.State {
	return sp.stateCh
}

// ProcessMessage handles one raw subscription payload.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case "full":
		return sp.handleFullState(event, processingStart)
	case "diff":
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFullState(event SubscriptionEvent, start time.Time) error {
	var cState clientState
	if err := json.Unmarshal(event.Payload, &cState); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}

	state := wirestate.State{
		ChainID:   cState.ChainID,
		Timestamp: cState.Timestamp,
		Block:     cState.Block,
		Pools:     map[component.PoolID]wirestate.PoolState{},
	}

	for poolID, poolState := range cState.Pools {
		typedData, err := sp.stateDecoder(poolState.Schema, poolState.Data)
		if err != nil {
			return fmt.Errorf("failed to decode state for pool %s: %w", poolID, err)
		}

		state.Pools[poolID] = wirestate.PoolState{
			Meta:              poolState.Meta,
			SyncedBlockNumber: poolState.SyncedBlockNumber,
			Schema:            poolState.Schema,
			Data:              typedData,
			Error:             poolState.Error,
		}
	}

	sp.logMetrics(&state, time.Since(start), event.SentAt, "full")
	sp.lastState = &state
	sp.stateCh <- &state
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var cDiff clientStateDiff
	if err := json.Unmarshal(event.Payload, &cDiff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.lastState == nil {
		return fmt.Errorf("received diff before full state; from_block=%d to_block=%d", cDiff.FromBlock, cDiff.ToBlock.Number)
	}

	diff := statediff.StateDiff{
		FromBlock: cDiff.FromBlock,
		ToBlock:   cDiff.ToBlock,
		Timestamp: cDiff.Timestamp,
		Pools:     make(map[component.PoolID]statediff.PoolDiff),
	}

	for poolID, poolDiff := range cDiff.Pools {
		typedData, err := sp.stateDiffDecoder(poolDiff.Schema, poolDiff.Data)
		if err != nil {
			return fmt.Errorf("failed to decode diff for pool %s: %w", poolID, err)
		}

		diff.Pools[poolID] = statediff.PoolDiff{
			Meta:              poolDiff.Meta,
			SyncedBlockNumber: poolDiff.SyncedBlockNumber,
			Schema:            poolDiff.Schema,
			Data:              typedData,
			Error:             poolDiff.Error,
		}
	}

	lastBlockNum := sp.lastState.Block.Number.Uint64()
	if diff.FromBlock != lastBlockNum {
		sp.logger.Warn("received out-of-order diff, discarding",
			"last_known_block", lastBlockNum,
			"diff_from_block", diff.FromBlock,
			"diff_to_block", diff.ToBlock.Number,
		)
		return nil
	}

	newState, err := sp.statePatcher(sp.lastState, &diff)
	if err != nil {
		return fmt.Errorf("failed to patch state: %w", err)
	}
	newState.Timestamp = diff.Timestamp

	sp.logMetrics(newState, time.Since(start), event.SentAt, "diff")
	sp.lastState = newState
	sp.stateCh <- newState
	return nil
}

func (sp *StreamProcessor) logMetrics(state *wirestate.State, processingDur time.Duration, sentAt int64, stateType string) {
	if state == nil {
		return
	}

	clientFinishTime := time.Now()
	blockTimestamp := time.Unix(int64(state.Block.Timestamp), 0)
	clientStartTime := clientFinishTime.Add(-processingDur)
	serverFinishTime := time.Unix(0, sentAt)

	transportTime := clientStartTime.Sub(serverFinishTime)
	totalLatency := clientFinishTime.Sub(blockTimestamp)
	serverProcessingMs := serverFinishTime.Sub(time.Unix(0, state.Block.ReceivedAt)).Milliseconds()

	errorCount := 0
	for _, p := range state.Pools {
		if p.Error != "" {
			errorCount++
		}
	}

	sp.logger.Debug("state processed",
		"block", state.Block.Number,
		"type", stateType,
		"pools", len(state.Pools),
		"errors", errorCount,
		"latency_total_ms", totalLatency.Milliseconds(),
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
		"latency_server_ms", serverProcessingMs,
	)
}

// Client manages the RPC connection and drives a StreamProcessor.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient dials url and subscribes to the block stream, retrying
// with exponential backoff on failure.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	processor := NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher, cfg.StateDecoder, cfg.StateDiffDecoder)
	client := &Client{
		processor: processor,
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *wirestate.State {
	return c.processor.State()
}

// Err returns a read-only channel that is closed when the client's run
// loop exits; no error values are sent on it.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("client context canceled, shutting down")
			return
		}

		c.logger.Info("connecting to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("failed to connect, retrying", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = minDuration(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("connected to RPC server")
		reconnectDelay = initialReconnectDelay

		if err := c.subscribeAndProcess(ctx, rpcClient); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("context canceled, shutting down")
				return
			}
			c.logger.Error("subscription failed, reconnecting", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = minDuration(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RPCNamespace, rawCh, BlockStreamSubscribeMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("subscribed, waiting for data")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
