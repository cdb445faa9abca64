// Package merkle builds the deterministic, provable allocation table committing
// contributors to their vested token allocations.
//
// Leaves are domain-separated keccak256 hashes; internal nodes hash their
// children in sorted order, so sibling position never needs to travel with a
// proof and the same leaf set always yields the same root regardless of
// insertion order.
package merkle

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// hashPair hashes two nodes in sorted order.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return common.BytesToHash(crypto.Keccak256(a[:], b[:]))
}

// tree holds every level of a built Merkle tree, leaves first.
type tree struct {
	levels [][]common.Hash
}

// buildTree constructs a tree over the given leaves. Leaves are sorted bytewise
// before building; an odd node is promoted unchanged to the next level rather
// than duplicated.
func buildTree(leaves []common.Hash) *tree {
	if len(leaves) == 0 {
		return &tree{}
	}

	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	sort.Slice(level, func(i, j int) bool {
		return bytes.Compare(level[i][:], level[j][:]) < 0
	})

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &tree{levels: levels}
}

// root returns the tree root, or the zero hash for an empty tree.
func (t *tree) root() common.Hash {
	if len(t.levels) == 0 {
		return common.Hash{}
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// prove returns the sibling path for the given leaf, bottom-up.
// The second return is false if the leaf is not in the tree.
func (t *tree) prove(leaf common.Hash) ([]common.Hash, bool) {
	if len(t.levels) == 0 {
		return nil, false
	}

	idx := -1
	for i, h := range t.levels[0] {
		if h == leaf {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false
	}

	var proof []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof, true
}

// VerifyProof recomputes the root from a leaf and its sibling path and compares
// it to the expected root. Pure function; no state is touched.
func VerifyProof(leaf common.Hash, proof []common.Hash, root common.Hash) bool {
	computed := leaf
	for _, node := range proof {
		computed = hashPair(computed, node)
	}
	return computed == root
}
