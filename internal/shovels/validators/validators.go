// Package validators buffers, every skipInterval blocks (DefaultSkipInterval
// when unset), a snapshot of each active validator's
// identity and performance stats: name/image/description/owner/url from the
// chain's on-chain identity registry, nominator count and daily return from
// delegate info, and a derived APY plus per-subnet hotkey alpha map.
//
// This shovel is not named by spec.md's distilled scope but is supplemented
// from original_source/shovel_validators/main.py (SPEC_FULL.md §4.1):
// nothing in spec.md's Non-goals excludes it, and it reuses the same
// chain-client operation set (query, runtime_call) every other shovel does.
package validators

import (
	"context"
	"math"
	"time"

	"github.com/substrate-warehouse/shovels/internal/blockmeta"
	"github.com/substrate-warehouse/shovels/internal/buffer"
	"github.com/substrate-warehouse/shovels/internal/chain"
	"github.com/substrate-warehouse/shovels/internal/ss58"
	"github.com/substrate-warehouse/shovels/internal/warehouse"
)

const (
	ShovelName = "validators"
	TableName  = "shovel_validators"

	DefaultSkipInterval = 7200

	// compoundingPeriodsPerDay matches the original's
	// COMPOUNDING_PERIODS_PER_DAY, used to annualize a per-1000 daily
	// return figure into an APY percentage.
	compoundingPeriodsPerDay = 7200

	// ss58Format is the network id byte SS58 addresses in this fleet use
	// (Bittensor's format, per original_source/shovel_validators/main.py's
	// SS58_FORMAT = 42).
	ss58Format = 42
)

// delegate is one entry of DelegateInfoRuntimeApi.get_delegates.
type delegate struct {
	address        string // SS58-encoded delegate_ss58
	owner          string // SS58-encoded owner_ss58, empty if absent
	nominators     int
	dailyReturn    float64
	returnPer1000  int64
	registrations  []uint64
	validatorPerms []uint64
}

type identity struct {
	name        string
	image       string
	description string
	url         string
}

type Shovel struct {
	chain        *chain.Client
	wh           *warehouse.Client
	buf          *buffer.Buffer
	meta         *blockmeta.Cache
	skipInterval uint64
}

func New(chainClient *chain.Client, wh *warehouse.Client, buf *buffer.Buffer, meta *blockmeta.Cache, skipInterval uint64) *Shovel {
	if skipInterval == 0 {
		skipInterval = DefaultSkipInterval
	}
	return &Shovel{chain: chainClient, wh: wh, buf: buf, meta: meta, skipInterval: skipInterval}
}

func (s *Shovel) Name() string { return ShovelName }

func (s *Shovel) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	if blockNumber%s.skipInterval != 0 {
		return nil
	}
	hash, err := s.meta.Hash(ctx, blockNumber)
	if err != nil {
		return err
	}
	tsMillis, err := s.meta.Timestamp(ctx, blockNumber)
	if err != nil {
		return err
	}
	timestamp := time.UnixMilli(int64(tsMillis)).UTC()

	delegatesVal, err := s.chain.RuntimeCall(ctx, "DelegateInfoRuntimeApi", "get_delegates", nil, hash)
	if err != nil {
		return err
	}
	delegates := decodeDelegates(delegatesVal)

	netuids, err := s.subnetUIDs(ctx, hash)
	if err != nil {
		return err
	}

	for _, d := range delegates {
		id, err := s.fetchIdentity(ctx, hash, d.owner)
		if err != nil {
			return err
		}
		alpha, err := s.hotkeyAlphaBySubnet(ctx, hash, d.address, netuids)
		if err != nil {
			return err
		}
		apy := apyFromDailyReturn(d.returnPer1000)

		name := id.name
		if name == "" {
			name = d.address
		}
		var owner, image, description, url any
		if d.owner != "" {
			owner = d.owner
		}
		if id.image != "" {
			image = id.image
		}
		if id.description != "" {
			description = id.description
		}
		if id.url != "" {
			url = id.url
		}

		s.buf.Insert(ctx, TableName, buffer.Row{
			blockNumber, timestamp, name, d.address, image, description, owner, url,
			uint64(d.nominators), d.dailyReturn, d.registrations, d.validatorPerms, apy, alpha,
		})
	}
	return nil
}

// subnetUIDs enumerates every live subnet id via SubnetInfoRuntimeApi, used
// to check per-subnet registration and hotkey alpha for each validator.
func (s *Shovel) subnetUIDs(ctx context.Context, at chain.Hash) ([]uint64, error) {
	result, err := s.chain.RuntimeCall(ctx, "SubnetInfoRuntimeApi", "get_subnets_info", nil, at)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, v := range result.Seq {
		if netuid, ok := v.Get("netuid"); ok {
			out = append(out, netuid.AsUint())
		}
	}
	return out, nil
}

// fetchIdentity resolves an owner coldkey's on-chain identity record. A
// delegate with no owner (or whose owner has never set an identity) yields a
// zero-value identity, matching the original's None-identity fallback.
func (s *Shovel) fetchIdentity(ctx context.Context, at chain.Hash, owner string) (identity, error) {
	if owner == "" {
		return identity{}, nil
	}
	v, err := s.chain.Query(ctx, "SubtensorModule", "IdentitiesV2", at, chain.String(owner))
	if err != nil {
		return identity{}, err
	}
	get := func(key string) string {
		val, ok := v.Get(key)
		if !ok {
			return ""
		}
		return decodeText(val)
	}
	return identity{
		name:        get("name"),
		image:       get("image"),
		description: get("description"),
		url:         get("url"),
	}, nil
}

// hotkeyAlphaBySubnet returns subnet id -> TotalHotkeyAlpha for every subnet
// the hotkey is registered in and whose alpha is nonzero, matching the
// original's registered-and-positive filter.
func (s *Shovel) hotkeyAlphaBySubnet(ctx context.Context, at chain.Hash, hotkey string, netuids []uint64) (map[uint64]float64, error) {
	alpha := make(map[uint64]float64)
	for _, netuid := range netuids {
		registered, err := s.chain.Query(ctx, "SubtensorModule", "Uids", at, chain.Uint(netuid), chain.String(hotkey))
		if err != nil {
			return nil, err
		}
		if registered.Kind == chain.KindNull {
			continue
		}
		a, err := s.chain.Query(ctx, "SubtensorModule", "TotalHotkeyAlpha", at, chain.String(hotkey), chain.Uint(netuid))
		if err != nil {
			return nil, err
		}
		value := valueAsFloat(a)
		if value > 0 {
			alpha[netuid] = value
		}
	}
	return alpha, nil
}

// decodeDelegates decodes DelegateInfoRuntimeApi.get_delegates's result,
// resolving delegate_ss58/owner_ss58 account-id bytes to SS58 addresses.
func decodeDelegates(v chain.Value) []delegate {
	var out []delegate
	for _, dv := range v.Seq {
		d := delegate{}
		if ss, ok := dv.Get("delegate_ss58"); ok {
			d.address = decodeAccountID(ss)
		}
		if ow, ok := dv.Get("owner_ss58"); ok {
			d.owner = decodeAccountID(ow)
		}
		if nominators, ok := dv.Get("nominators"); ok {
			d.nominators = len(nominators.Seq)
		}
		if ret, ok := dv.Get("total_daily_return"); ok {
			d.dailyReturn = valueAsFloat(ret)
		}
		if ret, ok := dv.Get("return_per_1000"); ok {
			d.returnPer1000 = int64(ret.Uint)
			if ret.Kind == chain.KindInt {
				d.returnPer1000 = ret.Int
			}
		}
		if regs, ok := dv.Get("registrations"); ok {
			d.registrations = uintSlice(regs)
		}
		if perms, ok := dv.Get("validator_permits"); ok {
			d.validatorPerms = uintSlice(perms)
		}
		out = append(out, d)
	}
	return out
}

func uintSlice(v chain.Value) []uint64 {
	out := make([]uint64, 0, len(v.Seq))
	for _, item := range v.Seq {
		out = append(out, item.AsUint())
	}
	return out
}

func valueAsFloat(v chain.Value) float64 {
	switch v.Kind {
	case chain.KindFloat:
		return v.Float
	case chain.KindUint:
		return float64(v.Uint)
	case chain.KindInt:
		return float64(v.Int)
	default:
		return 0
	}
}

// decodeAccountID resolves a SCALE-decoded AccountId32 to its SS58 form.
// The runtime returns it either as raw bytes or (rarely) an already-encoded
// string; both are handled, matching the original's decode_account_id
// tuple-or-nested-tuple branch.
func decodeAccountID(v chain.Value) string {
	switch v.Kind {
	case chain.KindString:
		return v.Str
	case chain.KindBytes:
		addr, err := ss58.Encode(ss58Format, v.Bytes)
		if err != nil {
			return ""
		}
		return addr
	default:
		return ""
	}
}

// decodeText returns a value already decoded as UTF-8 bytes or a string,
// matching the original's decode_string helper for identity fields the
// runtime may return as either.
func decodeText(v chain.Value) string {
	switch v.Kind {
	case chain.KindString:
		return v.Str
	case chain.KindBytes:
		return string(v.Bytes)
	default:
		return ""
	}
}

// apyFromDailyReturn compounds a per-1000 daily return figure into an
// annualized percentage, matching
// calculate_apy_from_daily_return(return_per_1000, COMPOUNDING_PERIODS_PER_DAY).
func apyFromDailyReturn(returnPer1000 int64) float64 {
	dailyReturn := float64(returnPer1000) / 1000
	periods := float64(compoundingPeriodsPerDay)
	apy := math.Pow(1+dailyReturn/periods, periods*365) - 1
	return round3(apy * 100)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func CreateTableSQL(database string) string {
	return "CREATE TABLE IF NOT EXISTS " + warehouse.QuoteIdentifier(database) + "." + warehouse.QuoteIdentifier(TableName) + " (\n" +
		"    block_number UInt64,\n" +
		"    timestamp DateTime,\n" +
		"    name String,\n" +
		"    address String,\n" +
		"    image Nullable(String),\n" +
		"    description Nullable(String),\n" +
		"    owner Nullable(String),\n" +
		"    url Nullable(String),\n" +
		"    nominators UInt64,\n" +
		"    daily_return Float64,\n" +
		"    registrations Array(UInt64),\n" +
		"    validator_permits Array(UInt64),\n" +
		"    apy Nullable(Float64),\n" +
		"    subnet_hotkey_alpha Map(UInt64, Float64)\n" +
		") ENGINE = ReplacingMergeTree()\n" +
		"ORDER BY (block_number, address)\n"
}
