package signer

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	ctypes "github.com/omnibridge/bridge-service/config/types"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
)

// Substrate signs pay_out extrinsics with a key derived from a secret seed
// file. Like the evm signer, the file may appear after startup.
type Substrate struct {
	cfg     ctypes.KeystoreFileConfig
	network uint16

	mu   sync.Mutex
	pair *signature.KeyringPair
}

// NewSubstrate prepares a signer reading its seed, an URI like a mnemonic or
// a //-derivation, from cfg.Path. network is the ss58 address prefix.
func NewSubstrate(cfg ctypes.KeystoreFileConfig, network uint16) *Substrate {
	return &Substrate{cfg: cfg, network: network}
}

func (s *Substrate) ensurePair() (*signature.KeyringPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair != nil {
		return s.pair, nil
	}
	seed, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", gerror.ErrKeyUnavailable, s.cfg.Path)
	}
	if err != nil {
		return nil, err
	}
	pair, err := signature.KeyringPairFromSecret(strings.TrimSpace(string(seed)), s.network)
	if err != nil {
		return nil, err
	}
	s.pair = &pair
	log.Infof("loaded relayer key %s from %s", pair.Address, s.cfg.Path)
	return s.pair, nil
}

// Healthy reports whether the key material is usable right now.
func (s *Substrate) Healthy() bool {
	_, err := s.ensurePair()
	return err == nil
}

// PublicKey returns the 32 byte account id of the relayer, or nil while the
// key is not provisioned yet.
func (s *Substrate) PublicKey() []byte {
	pair, err := s.ensurePair()
	if err != nil {
		return nil
	}
	return pair.PublicKey
}

// SignExtrinsic signs the extrinsic in place.
func (s *Substrate) SignExtrinsic(ext *types.Extrinsic, opts types.SignatureOptions) error {
	pair, err := s.ensurePair()
	if err != nil {
		return err
	}
	return ext.Sign(*pair, opts)
}
