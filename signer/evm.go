package signer

import (
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ctypes "github.com/omnibridge/bridge-service/config/types"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
)

// EVM signs payout transactions for one evm destination with a key loaded
// from an encrypted key store file. The key is loaded lazily so the service
// can start before provisioning finished, submissions queue up as unhealthy
// until the file appears.
type EVM struct {
	cfg       ctypes.KeystoreFileConfig
	networkID *big.Int

	mu  sync.Mutex
	key *keystore.Key
}

// NewEVM prepares a signer for the given key store file. It does not require
// the file to exist yet.
func NewEVM(cfg ctypes.KeystoreFileConfig, networkID *big.Int) *EVM {
	return &EVM{cfg: cfg, networkID: networkID}
}

func (s *EVM) ensureKey() (*keystore.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return s.key, nil
	}
	keystoreEncrypted, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", gerror.ErrKeyUnavailable, s.cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, s.cfg.Password)
	if err != nil {
		return nil, err
	}
	s.key = key
	log.Infof("loaded relayer key %s from %s", key.Address, s.cfg.Path)
	return key, nil
}

// Healthy reports whether the key material is usable right now.
func (s *EVM) Healthy() bool {
	_, err := s.ensureKey()
	return err == nil
}

// Address returns the relayer account address, or the zero address while the
// key is not provisioned yet.
func (s *EVM) Address() (common.Address, error) {
	key, err := s.ensureKey()
	if err != nil {
		return common.Address{}, err
	}
	return key.Address, nil
}

// SignTx signs a payout transaction for the configured network.
func (s *EVM) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	key, err := s.ensureKey()
	if err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(s.networkID), key.PrivateKey)
}
