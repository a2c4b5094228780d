// Package chain wraps JSON-RPC access to a Substrate archive node over
// WebSocket. It is deliberately small: the shovel fleet only ever needs the
// operations spec.md §6 lists (get_block_hash, get_block_number,
// get_chain_finalised_head, query, query_map, rpc_request, runtime_call,
// get_extrinsics). Everything else about the chain (consensus, transaction
// construction, archival) is the node's problem.
//
// Modeled on the teacher's internal/flow/client.go: one client owns a small
// pool of node URLs, round-robins across them, and exposes a Reconnect that
// drops the live connection so the next call re-dials. Unlike the teacher
// (gRPC to a Flow access node) a Substrate archive node speaks JSON-RPC, so
// the wire transport here is a WebSocket connection carrying JSON-RPC 2.0
// envelopes instead of a generated gRPC stub.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is a singleton-per-worker handle to the chain, per spec.md §4.D.
type Client struct {
	nodes   []string
	rr      uint32
	limiter *rate.Limiter

	mu   sync.Mutex
	conn *wsConn // lazily established; nil after Reconnect
}

// NewClient builds a client from a single node URL.
func NewClient(nodeURL string) (*Client, error) {
	nodes := parseNodeList("", nodeURL)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("chain: empty node URL")
	}
	return &Client{
		nodes:   nodes,
		limiter: rate.NewLimiter(rate.Limit(chainRPSFromEnv()), chainBurstFromEnv()),
	}, nil
}

// NewClientFromEnv reads a comma/space separated node list from envKey,
// falling back to fallback when the env var is empty.
func NewClientFromEnv(envKey, fallback string) (*Client, error) {
	nodes := parseNodeList(os.Getenv(envKey), fallback)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("chain: no archive node URL configured (env %s and fallback both empty)", envKey)
	}
	return &Client{
		nodes:   nodes,
		limiter: rate.NewLimiter(rate.Limit(chainRPSFromEnv()), chainBurstFromEnv()),
	}, nil
}

func chainRPSFromEnv() float64 {
	if v := os.Getenv("SUBSTRATE_RPC_QPS"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil && f > 0 {
			return f
		}
	}
	return 20
}

func chainBurstFromEnv() int {
	return 10
}

func parseNodeList(raw, fallback string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Reconnect drops the live connection; the next RPC call re-dials. This is
// the primitive the retry middleware uses before retrying a
// DatabaseConnectionError (spec.md §4.D, §7). It satisfies
// internal/retry.Reconnector.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	return nil
}

func (c *Client) nextNode() string {
	i := atomic.AddUint32(&c.rr, 1)
	return c.nodes[int(i)%len(c.nodes)]
}

// ensureConn returns the live connection, dialing a node if necessary.
func (c *Client) ensureConn(ctx context.Context) (*wsConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.alive() {
		return c.conn, nil
	}
	node := c.nextNode()
	conn, err := dialWS(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", node, err)
	}
	c.conn = conn
	log.Printf("[chain] connected to %s", node)
	return conn, nil
}

// call issues one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	raw, err := conn.request(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// wsConn is one JSON-RPC-over-WebSocket connection with a read loop that
// dispatches responses back to the caller that issued the matching request
// id. This mirrors how browser/node Substrate clients (polkadot.js) multiplex
// a single socket across concurrent callers.
type wsConn struct {
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan rpcResult

	closeOnce sync.Once
	done      chan struct{}
}

type rpcResult struct {
	raw json.RawMessage
	err error
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func dialWS(ctx context.Context, url string) (*wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	wc := &wsConn{
		url:     url,
		conn:    conn,
		pending: make(map[uint64]chan rpcResult),
		done:    make(chan struct{}),
	}
	go wc.readLoop()
	return wc, nil
}

func (c *wsConn) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.pendingMu.Lock()
		for _, ch := range c.pending {
			ch <- rpcResult{err: fmt.Errorf("chain: connection closed")}
		}
		c.pending = nil
		c.pendingMu.Unlock()
	})
}

func (c *wsConn) readLoop() {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env rpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()
		if !ok {
			continue
		}
		if env.Error != nil {
			ch <- rpcResult{err: fmt.Errorf("rpc error %d: %s", env.Error.Code, env.Error.Message)}
			continue
		}
		ch <- rpcResult{raw: env.Result}
	}
}

func (c *wsConn) request(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	c.writeMu.Lock()
	c.nextID++
	id := c.nextID
	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(env)
	if err != nil {
		c.writeMu.Unlock()
		return nil, err
	}
	ch := make(chan rpcResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	err = c.conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.raw, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("chain: connection closed while waiting for %s", method)
	}
}
