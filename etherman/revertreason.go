package etherman

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/omnibridge/bridge-service/log"
)

// revertReason replays a failed payout as a call at its inclusion block to
// recover the contract's revert string. Best effort, a generic reason is
// returned when the node will not cooperate.
func (c *Client) revertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) string {
	const fallback = "execution reverted"

	tx, _, err := c.TransactionByHash(ctx, hash)
	if err != nil {
		return fallback
	}
	signer := types.LatestSignerForChainID(c.networkID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return fallback
	}
	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	ret, err := c.CallContract(ctx, msg, receipt.BlockNumber)
	if err != nil {
		// some nodes embed the reason in the error itself
		return err.Error()
	}
	reason, err := abi.UnpackRevert(ret)
	if err != nil {
		log.Debugf("could not unpack revert data for tx %s: %v", hash, err)
		return fallback
	}
	return fallback + ": " + reason
}
