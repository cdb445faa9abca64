package merkle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchpad-settlement/internal/types"
)

func testDomain() LeafDomain {
	return LeafDomain{
		VestingVault: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Chain:        types.ChainBase,
		Salt:         crypto.Keccak256Hash([]byte("round-1")),
	}
}

func testEntries() []ContributionEntry {
	return []ContributionEntry{
		{Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(1500)},
		{Beneficiary: common.HexToAddress("0x02"), Amount: big.NewInt(1000)},
	}
}

func TestBuildAllocationTableProportions(t *testing.T) {
	// 500000 tokens over a 2500 raise: 1500 buys 300000, 1000 buys 200000.
	table, err := BuildAllocationTable(testEntries(), big.NewInt(500000), big.NewInt(2500), testDomain())
	require.NoError(t, err)

	require.Len(t, table.Entries, 2)
	assert.Equal(t, int64(300000), table.Entries[0].Allocation.Int64())
	assert.Equal(t, int64(200000), table.Entries[1].Allocation.Int64())
	assert.Equal(t, int64(500000), table.TotalAllocation.Int64())
	assert.NotEqual(t, common.Hash{}, table.Root)
}

func TestBuildAllocationTableFloorsDust(t *testing.T) {
	entries := []ContributionEntry{
		{Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(1)},
		{Beneficiary: common.HexToAddress("0x02"), Amount: big.NewInt(1)},
		{Beneficiary: common.HexToAddress("0x03"), Amount: big.NewInt(1)},
	}
	table, err := BuildAllocationTable(entries, big.NewInt(100), big.NewInt(3), testDomain())
	require.NoError(t, err)

	for _, e := range table.Entries {
		assert.Equal(t, int64(33), e.Allocation.Int64())
	}
	// 1 token of dust stays unallocated for the burn.
	assert.Equal(t, int64(99), table.TotalAllocation.Int64())
}

func TestBuildAllocationTableZeroRaise(t *testing.T) {
	_, err := BuildAllocationTable(nil, big.NewInt(100), big.NewInt(0), testDomain())
	require.Error(t, err)
}

func TestBuildAllocationTableDeterministicRoot(t *testing.T) {
	entries := testEntries()
	reversed := []ContributionEntry{entries[1], entries[0]}

	a, err := BuildAllocationTable(entries, big.NewInt(500000), big.NewInt(2500), testDomain())
	require.NoError(t, err)
	b, err := BuildAllocationTable(reversed, big.NewInt(500000), big.NewInt(2500), testDomain())
	require.NoError(t, err)

	assert.Equal(t, a.Root, b.Root)
}

func TestProofRoundTrip(t *testing.T) {
	domain := testDomain()
	entries := []ContributionEntry{
		{Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(100)},
		{Beneficiary: common.HexToAddress("0x02"), Amount: big.NewInt(200)},
		{Beneficiary: common.HexToAddress("0x03"), Amount: big.NewInt(300)},
		{Beneficiary: common.HexToAddress("0x04"), Amount: big.NewInt(400)},
		{Beneficiary: common.HexToAddress("0x05"), Amount: big.NewInt(500)},
	}
	table, err := BuildAllocationTable(entries, big.NewInt(15000), big.NewInt(1500), testDomain())
	require.NoError(t, err)

	for _, e := range table.Entries {
		proof, ok := table.ProofFor(e.Beneficiary, e.Allocation)
		require.True(t, ok, "proof missing for %s", e.Beneficiary.Hex())
		require.NoError(t, Verify(domain, e.Beneficiary, e.Allocation, proof, table.Root))
	}
}

func TestProofRejectsTamperedClaims(t *testing.T) {
	domain := testDomain()
	table, err := BuildAllocationTable(testEntries(), big.NewInt(500000), big.NewInt(2500), domain)
	require.NoError(t, err)

	entry := table.Entries[0]
	proof, ok := table.ProofFor(entry.Beneficiary, entry.Allocation)
	require.True(t, ok)

	// Inflated allocation
	inflated := new(big.Int).Add(entry.Allocation, big.NewInt(1))
	require.Error(t, Verify(domain, entry.Beneficiary, inflated, proof, table.Root))

	// Wrong beneficiary
	require.Error(t, Verify(domain, common.HexToAddress("0xff"), entry.Allocation, proof, table.Root))

	// Wrong salt: same table replayed against another round's domain
	otherDomain := domain
	otherDomain.Salt = crypto.Keccak256Hash([]byte("round-2"))
	require.Error(t, Verify(otherDomain, entry.Beneficiary, entry.Allocation, proof, table.Root))

	// Wrong vault
	otherVault := domain
	otherVault.VestingVault = common.HexToAddress("0xbb")
	require.Error(t, Verify(otherVault, entry.Beneficiary, entry.Allocation, proof, table.Root))

	// Wrong chain
	otherChain := domain
	otherChain.Chain = types.ChainEthereum
	require.Error(t, Verify(otherChain, entry.Beneficiary, entry.Allocation, proof, table.Root))

	// Truncated proof
	if len(proof) > 0 {
		require.Error(t, Verify(domain, entry.Beneficiary, entry.Allocation, proof[:len(proof)-1], table.Root))
	}
}

func TestProofForUnknownPair(t *testing.T) {
	table, err := BuildAllocationTable(testEntries(), big.NewInt(500000), big.NewInt(2500), testDomain())
	require.NoError(t, err)

	_, ok := table.ProofFor(common.HexToAddress("0xff"), big.NewInt(1))
	assert.False(t, ok)
}

func TestSingleEntryTree(t *testing.T) {
	domain := testDomain()
	entries := []ContributionEntry{
		{Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(100)},
	}
	table, err := BuildAllocationTable(entries, big.NewInt(1000), big.NewInt(100), domain)
	require.NoError(t, err)

	proof, ok := table.ProofFor(entries[0].Beneficiary, big.NewInt(1000))
	require.True(t, ok)
	assert.Empty(t, proof)
	require.NoError(t, Verify(domain, entries[0].Beneficiary, big.NewInt(1000), proof, table.Root))
}

func TestOddLeafCountPromotion(t *testing.T) {
	domain := testDomain()
	entries := []ContributionEntry{
		{Beneficiary: common.HexToAddress("0x01"), Amount: big.NewInt(100)},
		{Beneficiary: common.HexToAddress("0x02"), Amount: big.NewInt(100)},
		{Beneficiary: common.HexToAddress("0x03"), Amount: big.NewInt(100)},
	}
	table, err := BuildAllocationTable(entries, big.NewInt(300), big.NewInt(300), domain)
	require.NoError(t, err)

	for _, e := range table.Entries {
		proof, ok := table.ProofFor(e.Beneficiary, e.Allocation)
		require.True(t, ok)
		require.NoError(t, Verify(domain, e.Beneficiary, e.Allocation, proof, table.Root))
	}
}
