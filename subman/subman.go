package subman

import (
	"context"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
)

// Config holds the connection data for one substrate chain.
type Config struct {
	// ChainID is the logical bridge-level chain id.
	ChainID uint32 `mapstructure:"ChainID"`
	// URL is the websocket RPC endpoint.
	URL string `mapstructure:"URL"`
}

// Client is the substrate chain adapter. It reads OmniBridge pallet events
// out of finalized blocks and submits pay_out extrinsics.
type Client struct {
	api      *gsrpc.SubstrateAPI
	cfg      Config
	chainRef bridge.ChainRef

	destinations bridge.ChainSet
	genesisHash  types.Hash

	metaMu sync.RWMutex
	meta   *types.Metadata

	watchMu sync.Mutex
	watch   map[string]watchState
}

type watchState struct {
	state  bridge.OutcomeState
	reason string
}

// NewClient connects to a substrate node and caches its metadata.
func NewClient(cfg Config, destinations bridge.ChainSet) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(cfg.URL)
	if err != nil {
		log.Errorf("error connecting to %s: %+v", cfg.URL, err)
		return nil, err
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	genesisHash, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	return &Client{
		api:          api,
		cfg:          cfg,
		chainRef:     bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: cfg.ChainID},
		destinations: destinations,
		genesisHash:  genesisHash,
		meta:         meta,
		watch:        make(map[string]watchState),
	}, nil
}

// ChainRef returns the logical identity of this chain.
func (c *Client) ChainRef() bridge.ChainRef {
	return c.chainRef
}

func (c *Client) metadata() *types.Metadata {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	return c.meta
}

// refreshMetadata refetches runtime metadata, needed after runtime upgrades.
func (c *Client) refreshMetadata() error {
	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	c.metaMu.Lock()
	c.meta = meta
	c.metaMu.Unlock()
	return nil
}

// HeadHeight returns the latest finalized block number. Substrate finality
// is deterministic, no extra depth is applied.
func (c *Client) HeadHeight(ctx context.Context) (uint64, error) {
	finalized, err := c.api.RPC.Chain.GetFinalizedHead()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	header, err := c.api.RPC.Chain.GetHeader(finalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	return uint64(header.Number), nil
}

// PaidInEventsByBlockRange reads System.Events for every block in
// [fromBlock, toBlock] and decodes the OmniBridge PaidIn entries into
// transfer intents.
func (c *Client) PaidInEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]bridge.TransferIntent, error) {
	meta := c.metadata()
	key, err := types.CreateStorageKey(meta, "System", "Events", nil)
	if err != nil {
		return nil, err
	}
	var intents []bridge.TransferIntent
	for n := fromBlock; n <= toBlock; n++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		blockHash, err := c.api.RPC.Chain.GetBlockHash(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
		}
		raw, err := c.api.RPC.State.GetStorageRaw(key, blockHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
		}
		if raw == nil || len(*raw) == 0 {
			continue
		}
		var events bridgeEvents
		err = types.EventRecordsRaw(*raw).DecodeEventRecords(meta, &events)
		if err != nil {
			// a runtime upgrade can change event layouts under us, retry the
			// same block with refreshed metadata before giving up on the
			// range so the cursor never advances past undecoded deposits
			log.Warnf("chain %s: could not decode events of block %d: %v", c.chainRef, n, err)
			if refreshErr := c.refreshMetadata(); refreshErr != nil {
				return nil, refreshErr
			}
			meta = c.metadata()
			key, err = types.CreateStorageKey(meta, "System", "Events", nil)
			if err != nil {
				return nil, err
			}
			events = bridgeEvents{}
			if err := types.EventRecordsRaw(*raw).DecodeEventRecords(meta, &events); err != nil {
				return nil, fmt.Errorf("decoding events of block %d: %v", n, err)
			}
		}
		for _, ev := range events.OmniBridge_PaidIn {
			intents = append(intents, c.toIntent(ev, n))
		}
	}
	return intents, nil
}

func (c *Client) toIntent(ev PaidInEvent, blockNum uint64) bridge.TransferIntent {
	var txIndex uint
	if ev.Phase.IsApplyExtrinsic {
		txIndex = uint(ev.Phase.AsApplyExtrinsic)
	}
	var resourceID [32]byte
	copy(resourceID[:], ev.ResourceID[:])
	return bridge.TransferIntent{
		Source:        c.chainRef,
		SourceBlock:   blockNum,
		SourceTxIndex: txIndex,
		DepositNonce:  uint64(ev.Nonce),
		Destination:   c.destinations.Resolve(uint32(ev.DestChain)),
		Recipient:     ev.Recipient,
		Amount:        ev.Amount.Int,
		ResourceID:    resourceID,
	}
}

// AccountNonce returns the on-chain nonce of the relayer account.
func (c *Client) AccountNonce(ctx context.Context, accountID []byte) (uint64, error) {
	meta := c.metadata()
	key, err := types.CreateStorageKey(meta, "System", "Account", accountID)
	if err != nil {
		return 0, err
	}
	var accountInfo types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &accountInfo)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	if !ok {
		return 0, nil
	}
	return uint64(accountInfo.Nonce), nil
}
