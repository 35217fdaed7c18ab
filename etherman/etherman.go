package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
)

// bridgeABIJSON is the payout surface of the OmniBridge contract. PaidIn is
// emitted on deposit, payOut releases funds for a deposit observed elsewhere.
const bridgeABIJSON = `[
	{"type":"event","name":"PaidIn","anonymous":false,"inputs":[
		{"name":"nonce","type":"uint64","indexed":false},
		{"name":"sender","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"callData","type":"bytes","indexed":false}]},
	{"type":"function","name":"payOut","stateMutability":"nonpayable","outputs":[],"inputs":[
		{"name":"nonce","type":"uint64"},
		{"name":"amount","type":"uint256"},
		{"name":"recipient","type":"address"},
		{"name":"resourceID","type":"bytes32"}]}
]`

var (
	paidInSignatureHash = crypto.Keccak256Hash([]byte("PaidIn(uint64,address,uint256,bytes)"))

	bridgeABI    abi.ABI
	callDataArgs abi.Arguments
)

func init() {
	var err error
	bridgeABI, err = abi.JSON(strings.NewReader(bridgeABIJSON))
	if err != nil {
		panic(err)
	}
	uint32Ty, _ := abi.NewType("uint32", "", nil)
	bytesTy, _ := abi.NewType("bytes", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	callDataArgs = abi.Arguments{
		{Name: "destChainID", Type: uint32Ty},
		{Name: "recipient", Type: bytesTy},
		{Name: "resourceID", Type: bytes32Ty},
	}
}

// Config holds the connection data for one evm chain.
type Config struct {
	// ChainID is the logical bridge-level chain id.
	ChainID uint32 `mapstructure:"ChainID"`
	// URL is the JSON-RPC endpoint.
	URL string `mapstructure:"URL"`
	// BridgeAddr is the OmniBridge contract address.
	BridgeAddr common.Address `mapstructure:"BridgeAddr"`
	// ConfirmationDepth is how many blocks below the tip a block must be
	// before its events are trusted.
	ConfirmationDepth uint64 `mapstructure:"ConfirmationDepth"`
}

// Client is the evm chain adapter. It decodes PaidIn deposits into transfer
// intents and builds, submits and tracks payOut transactions.
type Client struct {
	*ethclient.Client

	cfg          Config
	chainRef     bridge.ChainRef
	destinations bridge.ChainSet
	networkID    *big.Int
}

// NewClient connects to an evm node and checks the endpoint answers.
func NewClient(ctx context.Context, cfg Config, destinations bridge.ChainSet) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		log.Errorf("error connecting to %s: %+v", cfg.URL, err)
		return nil, err
	}
	networkID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	return &Client{
		Client:       ec,
		cfg:          cfg,
		chainRef:     bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: cfg.ChainID},
		destinations: destinations,
		networkID:    networkID,
	}, nil
}

// ChainRef returns the logical identity of this chain.
func (c *Client) ChainRef() bridge.ChainRef {
	return c.chainRef
}

// NetworkID returns the EIP-155 chain id of the connected network.
func (c *Client) NetworkID() *big.Int {
	return c.networkID
}

// HeadHeight returns the newest block height considered stable, the chain
// tip minus the confirmation depth.
func (c *Client) HeadHeight(ctx context.Context) (uint64, error) {
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	if head < c.cfg.ConfirmationDepth {
		return 0, nil
	}
	return head - c.cfg.ConfirmationDepth, nil
}

// PaidInEventsByBlockRange scans [fromBlock, toBlock] for PaidIn events on
// the bridge contract and decodes them into transfer intents, ordered by
// block then log index.
func (c *Client) PaidInEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]bridge.TransferIntent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.cfg.BridgeAddr},
		Topics:    [][]common.Hash{{paidInSignatureHash}},
	}
	logs, err := c.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	var intents []bridge.TransferIntent
	for _, vLog := range logs {
		intent, err := decodePaidIn(vLog, c.chainRef, c.destinations)
		if err != nil {
			log.Warnf("chain %s: skipping undecodable PaidIn log in tx %s: %v", c.chainRef, vLog.TxHash, err)
			continue
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

// decodePaidIn turns one PaidIn log into the canonical intent shape. The
// event's callData carries (destChainID, recipient, resourceID) ABI-encoded.
func decodePaidIn(vLog types.Log, source bridge.ChainRef, destinations bridge.ChainSet) (bridge.TransferIntent, error) {
	vals, err := bridgeABI.Unpack("PaidIn", vLog.Data)
	if err != nil {
		return bridge.TransferIntent{}, err
	}
	nonce, ok := vals[0].(uint64)
	if !ok {
		return bridge.TransferIntent{}, errors.New("malformed nonce field")
	}
	amount, ok := vals[2].(*big.Int)
	if !ok {
		return bridge.TransferIntent{}, errors.New("malformed amount field")
	}
	callData, ok := vals[3].([]byte)
	if !ok {
		return bridge.TransferIntent{}, errors.New("malformed callData field")
	}
	cdVals, err := callDataArgs.Unpack(callData)
	if err != nil {
		return bridge.TransferIntent{}, fmt.Errorf("malformed callData: %v", err)
	}
	destChainID := cdVals[0].(uint32)
	recipient := cdVals[1].([]byte)
	resourceID := cdVals[2].([32]byte)

	return bridge.TransferIntent{
		Source:        source,
		SourceBlock:   vLog.BlockNumber,
		SourceTxIndex: vLog.Index,
		DepositNonce:  nonce,
		Destination:   destinations.Resolve(destChainID),
		Recipient:     recipient,
		Amount:        amount,
		ResourceID:    resourceID,
	}, nil
}

// BuildPayOut assembles an unsigned payOut transaction for the given intent.
// Gas is estimated against the node, so a payout the contract would revert
// surfaces here as a rejection before anything is broadcast.
func (c *Client) BuildPayOut(ctx context.Context, intent bridge.TransferIntent, from common.Address, nonce uint64) (*types.Transaction, error) {
	if len(intent.Recipient) != common.AddressLength {
		return nil, fmt.Errorf("recipient must be %d bytes, got %d", common.AddressLength, len(intent.Recipient))
	}
	recipient := common.BytesToAddress(intent.Recipient)
	data, err := bridgeABI.Pack("payOut", intent.DepositNonce, intent.Amount, recipient, intent.ResourceID)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	gas, err := c.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.cfg.BridgeAddr,
		Data: data,
	})
	if err != nil {
		// estimation failure is the contract saying no, keep the node's words
		return nil, err
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.cfg.BridgeAddr,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	}), nil
}

// Submit broadcasts a signed payout and returns its hash.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) ([]byte, error) {
	if err := c.SendTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx.Hash().Bytes(), nil
}

// PollOutcome reports the current fate of a broadcast payout. A mined
// success only becomes final once it is buried under the confirmation depth.
func (c *Client) PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error) {
	hash := common.BytesToHash(txHash)
	receipt, err := c.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		_, _, err = c.TransactionByHash(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			// dropped from the pool, or never seen by this node
			return bridge.OutcomeUnknown, "transaction not found", nil
		}
		if err != nil {
			return bridge.OutcomeUnknown, "", fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
		}
		return bridge.OutcomePending, "", nil
	}
	if err != nil {
		return bridge.OutcomeUnknown, "", fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return bridge.OutcomeRejected, c.revertReason(ctx, hash, receipt), nil
	}
	head, err := c.BlockNumber(ctx)
	if err != nil {
		return bridge.OutcomeUnknown, "", fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	if head < receipt.BlockNumber.Uint64()+c.cfg.ConfirmationDepth {
		return bridge.OutcomePending, "", nil
	}
	return bridge.OutcomeFinalized, "", nil
}

// CheckTxWasMined reports whether the tx with the given hash already has a
// receipt, and whether that receipt succeeded.
func (c *Client) CheckTxWasMined(ctx context.Context, txHash []byte) (bool, bool, error) {
	receipt, err := c.TransactionReceipt(ctx, common.BytesToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	return true, receipt.Status == types.ReceiptStatusSuccessful, nil
}

// AccountNonce returns the pending nonce of the relayer account as the node
// sees it.
func (c *Client) AccountNonce(ctx context.Context, account common.Address) (uint64, error) {
	nonce, err := c.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", gerror.ErrRPCUnavailable, err)
	}
	return nonce, nil
}
