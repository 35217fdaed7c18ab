package bridge

import "fmt"

// ChainFamily tells which adapter family a chain belongs to.
type ChainFamily string

const (
	// FamilyEVM identifies chains reached through an Ethereum JSON-RPC endpoint.
	FamilyEVM ChainFamily = "evm"
	// FamilySubstrate identifies chains reached through a Substrate RPC endpoint.
	FamilySubstrate ChainFamily = "substrate"
)

// ChainRef identifies one chain in the bridge topology. ChainID is the
// logical bridge-level identifier, not the network's own genesis or EIP-155
// id, and must be unique across both families.
type ChainRef struct {
	Family  ChainFamily
	ChainID uint32
}

func (c ChainRef) String() string {
	return fmt.Sprintf("%s:%d", c.Family, c.ChainID)
}

// IsZero reports whether the ref has not been resolved to a configured chain.
func (c ChainRef) IsZero() bool {
	return c.Family == "" && c.ChainID == 0
}

// ChainSet resolves logical chain ids to full refs. Built once from the
// configured chain list.
type ChainSet map[uint32]ChainRef

// NewChainSet builds a ChainSet from the given refs.
func NewChainSet(refs ...ChainRef) ChainSet {
	s := make(ChainSet, len(refs))
	for _, r := range refs {
		s[r.ChainID] = r
	}
	return s
}

// Resolve returns the full ref for a logical chain id. An unknown id returns
// a zero ref, which downstream turns into a terminal relay failure rather
// than an error here.
func (s ChainSet) Resolve(chainID uint32) ChainRef {
	return s[chainID]
}
