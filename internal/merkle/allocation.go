package merkle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/launchpad-settlement/internal/amount"
	"github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/types"
)

// ContributionEntry is one contributor's confirmed total for a round
type ContributionEntry struct {
	Beneficiary common.Address
	Amount      *big.Int
}

// AllocationEntry is one contributor's derived token allocation
type AllocationEntry struct {
	Beneficiary common.Address
	Allocation  *big.Int
}

// LeafDomain pins a leaf to one vesting vault, chain and round so that a leaf
// computed for one vault or chain can never be replayed against another.
type LeafDomain struct {
	VestingVault common.Address
	Chain        types.ChainID
	Salt         common.Hash
}

// Leaf computes the domain-separated leaf hash for (beneficiary, allocation).
func (d LeafDomain) Leaf(beneficiary common.Address, allocation *big.Int) common.Hash {
	chainScope := crypto.Keccak256Hash([]byte(d.Chain))
	amt := common.BigToHash(allocation)
	return common.BytesToHash(crypto.Keccak256(
		d.VestingVault.Bytes(),
		chainScope.Bytes(),
		d.Salt.Bytes(),
		beneficiary.Bytes(),
		amt.Bytes(),
	))
}

// AllocationTable is the built, provable allocation commitment for a round
type AllocationTable struct {
	Root            common.Hash
	TotalAllocation *big.Int
	Entries         []AllocationEntry

	domain LeafDomain
	tree   *tree
}

// BuildAllocationTable derives each contributor's deterministic token allocation
// as contribution × tokensForSale / totalRaised (floor) and commits the entry
// set into a Merkle tree.
//
// Dust from floor division is intentionally left unallocated: the table invariant
// is Σ allocation ≤ tokensForSale, and the shortfall is exactly the quantity
// later burned or swept.
func BuildAllocationTable(entries []ContributionEntry, tokensForSale, totalRaised *big.Int, domain LeafDomain) (*AllocationTable, error) {
	if totalRaised == nil || totalRaised.Sign() == 0 {
		return nil, errors.NewDivisionByZeroError("allocation table build")
	}

	table := &AllocationTable{
		TotalAllocation: amount.Zero(),
		Entries:         make([]AllocationEntry, 0, len(entries)),
		domain:          domain,
	}

	leaves := make([]common.Hash, 0, len(entries))
	for _, e := range entries {
		alloc, err := amount.Proportional(e.Amount, totalRaised, tokensForSale)
		if err != nil {
			return nil, err
		}
		table.Entries = append(table.Entries, AllocationEntry{
			Beneficiary: e.Beneficiary,
			Allocation:  alloc,
		})
		table.TotalAllocation, err = amount.Add(table.TotalAllocation, alloc)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, domain.Leaf(e.Beneficiary, alloc))
	}

	if table.TotalAllocation.Cmp(tokensForSale) > 0 {
		// Floor division cannot allocate more than the budget; reaching this
		// means the contribution set and totalRaised disagree.
		return nil, errors.NewInsufficientTokenBudgetError(
			amount.Format(table.TotalAllocation), amount.Format(tokensForSale))
	}

	table.tree = buildTree(leaves)
	table.Root = table.tree.root()
	return table, nil
}

// ProofFor returns the Merkle proof for (beneficiary, allocation).
// The second return is false when the pair is not part of the table.
func (t *AllocationTable) ProofFor(beneficiary common.Address, allocation *big.Int) ([]common.Hash, bool) {
	return t.tree.prove(t.domain.Leaf(beneficiary, allocation))
}

// Verify checks a claim against a stored root. It is a pure function: failure
// is a ProofInvalid error local to this claim, never an abort of anything else.
func Verify(domain LeafDomain, beneficiary common.Address, allocation *big.Int, proof []common.Hash, root common.Hash) error {
	if VerifyProof(domain.Leaf(beneficiary, allocation), proof, root) {
		return nil
	}
	return errors.NewProofInvalidError(beneficiary.Hex())
}
