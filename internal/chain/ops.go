package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

// wrapErr turns a transport-level failure into a DatabaseConnectionError so
// the shovel runtime's retry policy (spec.md §7) can classify it.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return shovelerr.NewDatabaseConnectionError(op, err)
}

// GetChainFinalisedHead returns the hash of the chain's finalized head.
func (c *Client) GetChainFinalisedHead(ctx context.Context) (Hash, error) {
	var hash Hash
	err := c.call(ctx, "chain_getFinalizedHead", nil, &hash)
	return hash, wrapErr("get_chain_finalised_head", err)
}

type headerResult struct {
	Number string `json:"number"` // hex-encoded
}

// GetBlockNumber resolves a block hash to its number.
func (c *Client) GetBlockNumber(ctx context.Context, hash Hash) (uint64, error) {
	var hdr headerResult
	if err := c.call(ctx, "chain_getHeader", []any{hash}, &hdr); err != nil {
		return 0, wrapErr("get_block_number", err)
	}
	n, err := parseHexUint(hdr.Number)
	if err != nil {
		return 0, fmt.Errorf("get_block_number: %w", err)
	}
	return n, nil
}

// GetBlockHash resolves a block number to its hash.
func (c *Client) GetBlockHash(ctx context.Context, n uint64) (Hash, error) {
	var hash Hash
	err := c.call(ctx, "chain_getBlockHash", []any{n}, &hash)
	return hash, wrapErr("get_block_hash", err)
}

// Query fetches a single decoded storage value. The archive node is assumed
// to expose a pallet/item-addressed query surface (as e.g. a Subscan-style
// sidecar does) so the shovel fleet never needs its own metadata-aware SCALE
// decoder -- spec.md §6 already specifies this operation as returning an
// already-decoded value.
func (c *Client) Query(ctx context.Context, pallet, item string, at Hash, params ...Value) (Value, error) {
	var raw json.RawMessage
	req := queryRequest{Pallet: pallet, Item: item, At: at, Params: params}
	if err := c.call(ctx, "state_query", []any{req}, &raw); err != nil {
		return Value{}, wrapErr(fmt.Sprintf("query(%s.%s)", pallet, item), err)
	}
	return decodeJSONValue(raw), nil
}

// QueryMap fetches an entire storage map (or double map), page by page.
func (c *Client) QueryMap(ctx context.Context, pallet, item string, at Hash, pageSize int, params ...Value) ([]KV, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	var out []KV
	var startKey string
	for {
		req := queryMapRequest{Pallet: pallet, Item: item, At: at, Params: params, PageSize: pageSize, StartKey: startKey}
		var page queryMapPage
		if err := c.call(ctx, "state_queryMap", []any{req}, &page); err != nil {
			return nil, wrapErr(fmt.Sprintf("query_map(%s.%s)", pallet, item), err)
		}
		for _, entry := range page.Entries {
			kv := KV{Value: decodeJSONValue(entry.Value)}
			for _, k := range entry.Key {
				kv.Key = append(kv.Key, decodeJSONValue(k))
			}
			out = append(out, kv)
		}
		if page.NextKey == "" || len(page.Entries) == 0 {
			break
		}
		startKey = page.NextKey
	}
	return out, nil
}

type queryRequest struct {
	Pallet string  `json:"pallet"`
	Item   string  `json:"item"`
	At     Hash    `json:"at"`
	Params []Value `json:"params,omitempty"`
}

type queryMapRequest struct {
	Pallet   string  `json:"pallet"`
	Item     string  `json:"item"`
	At       Hash    `json:"at"`
	Params   []Value `json:"params,omitempty"`
	PageSize int     `json:"page_size"`
	StartKey string  `json:"start_key,omitempty"`
}

type queryMapEntry struct {
	Key   []json.RawMessage `json:"key"`
	Value json.RawMessage   `json:"value"`
}

type queryMapPage struct {
	Entries []queryMapEntry `json:"entries"`
	NextKey string          `json:"next_key,omitempty"`
}

// RPCRequest issues an arbitrary JSON-RPC method, for calls spec.md §6 names
// verbatim (state_getReadProof) that don't fit the Query/QueryMap shape.
func (c *Client) RPCRequest(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.call(ctx, method, params, &raw)
	return raw, wrapErr("rpc_request("+method+")", err)
}

// GetReadProof fetches a Merkle read proof for the given key prefixes.
func (c *Client) GetReadProof(ctx context.Context, prefixesHex []string, at Hash) (ReadProof, error) {
	raw, err := c.RPCRequest(ctx, "state_getReadProof", []any{prefixesHex, at})
	if err != nil {
		return ReadProof{}, err
	}
	var result struct {
		Proof []string `json:"proof"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return ReadProof{}, fmt.Errorf("state_getReadProof: decode: %w", err)
	}
	return ReadProof{AtBlock: at, Proof: result.Proof}, nil
}

// RuntimeCall invokes a runtime API method (e.g. SubnetInfoRuntimeApi).
func (c *Client) RuntimeCall(ctx context.Context, api, method string, params []Value, at Hash) (Value, error) {
	var raw json.RawMessage
	req := runtimeCallRequest{API: api, Method: method, Params: params, At: at}
	if err := c.call(ctx, "state_call", []any{req}, &raw); err != nil {
		return Value{}, wrapErr(fmt.Sprintf("runtime_call(%s.%s)", api, method), err)
	}
	return decodeJSONValue(raw), nil
}

type runtimeCallRequest struct {
	API    string  `json:"api"`
	Method string  `json:"method"`
	Params []Value `json:"params,omitempty"`
	At     Hash    `json:"at"`
}

type rawExtrinsic struct {
	Address *string         `json:"address"`
	Nonce   *uint64         `json:"nonce"`
	Tip     *uint64         `json:"tip"`
	Call    rawCall         `json:"call"`
}

type rawCall struct {
	CallModule   string        `json:"call_module"`
	CallFunction string        `json:"call_function"`
	CallArgs     []rawCallArg  `json:"call_args"`
}

type rawCallArg struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// GetExtrinsics fetches and decodes every extrinsic in a block.
func (c *Client) GetExtrinsics(ctx context.Context, blockNumber uint64) ([]Extrinsic, error) {
	var raw []rawExtrinsic
	if err := c.call(ctx, "archive_getExtrinsics", []any{blockNumber}, &raw); err != nil {
		return nil, wrapErr("get_extrinsics", err)
	}
	out := make([]Extrinsic, 0, len(raw))
	for i, re := range raw {
		ext := Extrinsic{
			Index: i,
			Nonce: re.Nonce,
			Tip:   re.Tip,
			Call: Call{
				Module:   re.Call.CallModule,
				Function: re.Call.CallFunction,
			},
		}
		if re.Address != nil {
			ext.Address = *re.Address
		}
		for _, a := range re.Call.CallArgs {
			ext.Call.Args = append(ext.Call.Args, CallArg{
				Name:  a.Name,
				Type:  a.Type,
				Value: decodeJSONValue(a.Value),
			})
		}
		out = append(out, ext)
	}
	return out, nil
}

type rawEvent struct {
	Event struct {
		ModuleID   string          `json:"module_id"`
		EventID    string          `json:"event_id"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"event"`
	ExtrinsicIdx int `json:"extrinsic_idx"`
}

// GetEvents fetches System.Events for the block at the given hash.
func (c *Client) GetEvents(ctx context.Context, at Hash) ([]EventRecord, error) {
	var raw []rawEvent
	if err := c.call(ctx, "state_getEvents", []any{at}, &raw); err != nil {
		return nil, wrapErr("query(System.Events)", err)
	}
	out := make([]EventRecord, 0, len(raw))
	for _, re := range raw {
		out = append(out, EventRecord{
			Module:       re.Event.ModuleID,
			Event:        re.Event.EventID,
			Attributes:   decodeJSONValue(re.Event.Attributes),
			ExtrinsicIdx: re.ExtrinsicIdx,
		})
	}
	return out, nil
}
