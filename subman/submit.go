package subman

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
	"golang.org/x/crypto/blake2b"
)

const accountIDLength = 32

// ExtrinsicSigner signs a built extrinsic without the adapter ever touching
// key material.
type ExtrinsicSigner interface {
	SignExtrinsic(ext *types.Extrinsic, opts types.SignatureOptions) error
	PublicKey() []byte
}

// SubmitPayOut builds, signs and broadcasts an OmniBridge.pay_out extrinsic
// for the given intent, then tracks its status in the background. The
// returned hash can be fed to PollOutcome.
func (c *Client) SubmitPayOut(ctx context.Context, intent bridge.TransferIntent, nonce uint64, signer ExtrinsicSigner) ([]byte, error) {
	if len(intent.Recipient) != accountIDLength {
		return nil, fmt.Errorf("recipient must be %d bytes, got %d", accountIDLength, len(intent.Recipient))
	}
	var recipient [32]byte
	copy(recipient[:], intent.Recipient)

	meta := c.metadata()
	call, err := types.NewCall(meta, "OmniBridge.pay_out",
		types.NewU32(intent.Source.ChainID),
		types.NewU64(intent.DepositNonce),
		intent.ResourceID,
		recipient,
		types.NewU128(*intent.Amount),
	)
	if err != nil {
		return nil, err
	}
	ext := types.NewExtrinsic(call)

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	opts := types.SignatureOptions{
		BlockHash:          c.genesisHash,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        c.genesisHash,
		Nonce:              types.NewUCompactFromUInt(nonce),
		SpecVersion:        rv.SpecVersion,
		TransactionVersion: rv.TransactionVersion,
		Tip:                types.NewUCompactFromUInt(0),
	}
	if err := signer.SignExtrinsic(&ext, opts); err != nil {
		return nil, err
	}

	enc, err := codec.Encode(ext)
	if err != nil {
		return nil, err
	}
	hash := blake2b.Sum256(enc)

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		// the node validated and refused, keep its words for classification
		return nil, err
	}
	c.setWatch(hash[:], bridge.OutcomePending, "")
	go c.trackExtrinsic(hash[:], sub)

	return hash[:], nil
}

func (c *Client) trackExtrinsic(txHash []byte, sub *author.ExtrinsicStatusSubscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case status := <-sub.Chan():
			switch {
			case status.IsFinalized:
				state, reason := c.finalizedOutcome(txHash, status.AsFinalized)
				c.setWatch(txHash, state, reason)
				return
			case status.IsDropped:
				c.setWatch(txHash, bridge.OutcomeRejected, "dropped from the transaction pool")
				return
			case status.IsInvalid:
				c.setWatch(txHash, bridge.OutcomeRejected, "invalid extrinsic")
				return
			case status.IsUsurped:
				c.setWatch(txHash, bridge.OutcomeRejected, "usurped by another extrinsic")
				return
			case status.IsFinalityTimeout:
				c.setWatch(txHash, bridge.OutcomeUnknown, "finality timeout")
				return
			case status.IsInBlock:
				c.setWatch(txHash, bridge.OutcomePending, "")
			}
		case err := <-sub.Err():
			log.Warnf("chain %s: extrinsic watch for %x broke: %v", c.chainRef, txHash, err)
			c.setWatch(txHash, bridge.OutcomeUnknown, "status subscription lost")
			return
		}
	}
}

// finalizedOutcome inspects the finalized block that carries the extrinsic.
// Inclusion alone is not success: a finalized block records a
// System.ExtrinsicFailed event for extrinsics whose dispatch errored, and
// those must not read as paid out.
func (c *Client) finalizedOutcome(txHash []byte, blockHash types.Hash) (bridge.OutcomeState, string) {
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return bridge.OutcomeUnknown, fmt.Sprintf("could not fetch finalized block: %v", err)
	}
	index := -1
	for i := range block.Block.Extrinsics {
		enc, encErr := codec.Encode(block.Block.Extrinsics[i])
		if encErr != nil {
			continue
		}
		sum := blake2b.Sum256(enc)
		if bytes.Equal(sum[:], txHash) {
			index = i
			break
		}
	}
	if index < 0 {
		return bridge.OutcomeUnknown, "extrinsic not found in finalized block"
	}

	meta := c.metadata()
	key, err := types.CreateStorageKey(meta, "System", "Events", nil)
	if err != nil {
		return bridge.OutcomeUnknown, fmt.Sprintf("could not read finalized block events: %v", err)
	}
	raw, err := c.api.RPC.State.GetStorageRaw(key, blockHash)
	if err != nil || raw == nil {
		return bridge.OutcomeUnknown, "could not read finalized block events"
	}
	var events bridgeEvents
	if err := types.EventRecordsRaw(*raw).DecodeEventRecords(meta, &events); err != nil {
		return bridge.OutcomeUnknown, fmt.Sprintf("could not decode finalized block events: %v", err)
	}
	return finalizedVerdict(meta, index, &events)
}

// finalizedVerdict maps the dispatch fate of the extrinsic at index within
// a finalized block's event records. A pallet-level duplicate payout reads
// as already processed so a re-dispatched record settles instead of burning
// its retry budget.
func finalizedVerdict(meta *types.Metadata, index int, events *bridgeEvents) (bridge.OutcomeState, string) {
	for _, ev := range events.System_ExtrinsicFailed {
		if !ev.Phase.IsApplyExtrinsic || int(ev.Phase.AsApplyExtrinsic) != index {
			continue
		}
		reason := dispatchErrorReason(meta, ev.DispatchError)
		if strings.Contains(reason, "AlreadyPaid") {
			return bridge.OutcomeAlreadyProcessed, reason
		}
		return bridge.OutcomeRejected, reason
	}
	return bridge.OutcomeFinalized, ""
}

func dispatchErrorReason(meta *types.Metadata, dispatchErr types.DispatchError) string {
	switch {
	case dispatchErr.IsBadOrigin:
		return "BadOrigin"
	case dispatchErr.IsModule:
		if meta != nil {
			metaErr, err := meta.FindError(dispatchErr.ModuleError.Index, dispatchErr.ModuleError.Error)
			if err == nil && metaErr != nil {
				return fmt.Sprintf("%s", metaErr.Name)
			}
		}
		return fmt.Sprintf("module error %d/%v", dispatchErr.ModuleError.Index, dispatchErr.ModuleError.Error)
	case dispatchErr.IsToken:
		return "token error"
	case dispatchErr.IsArithmetic:
		return "arithmetic error"
	case dispatchErr.IsCannotLookup:
		return "cannot lookup"
	default:
		return "extrinsic dispatch failed"
	}
}

func (c *Client) setWatch(txHash []byte, state bridge.OutcomeState, reason string) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.watch[hex.EncodeToString(txHash)] = watchState{state: state, reason: reason}
}

// PollOutcome reports the tracked status of a submitted extrinsic. Reading
// a terminal state evicts the entry so the watch map stays bounded by the
// number of in-flight extrinsics. An untracked hash, which happens after a
// restart or after eviction, reads as unknown and the scheduler falls back
// to re-dispatching, where the pallet's own deposit nonce dedup turns a
// double payout attempt into AlreadyProcessed.
func (c *Client) PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error) {
	key := hex.EncodeToString(txHash)
	c.watchMu.Lock()
	ws, ok := c.watch[key]
	if ok {
		switch ws.state {
		case bridge.OutcomeFinalized, bridge.OutcomeRejected, bridge.OutcomeAlreadyProcessed:
			delete(c.watch, key)
		}
	}
	c.watchMu.Unlock()
	if !ok {
		return bridge.OutcomeUnknown, "transaction not found", nil
	}
	return ws.state, ws.reason, nil
}

// CheckTxWasMined always answers not mined. Substrate nodes have no
// transaction-by-hash lookup, the pallet's deposit nonce check is what
// protects re-dispatched records from paying out twice.
func (c *Client) CheckTxWasMined(ctx context.Context, txHash []byte) (bool, bool, error) {
	return false, false, nil
}
