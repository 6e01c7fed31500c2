// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// PartialMerkleTree is a compact authenticated representation of a merkle
// tree over a set of leaf hashes with a subset marked as matched.
//
// The encoding works as follows: the tree is traversed in depth-first order,
// storing a flag bit for each traversed node signifying whether the node is
// the parent of at least one matched leaf (or a matched leaf itself).  At the
// leaf level, or when the bit is false, the merkle hash of the node is stored
// and its children are not explored further.  Otherwise no hash is stored and
// the traversal recurses into both (or the only) child branch.  During
// extraction the same depth-first traversal is performed, consuming bits and
// hashes in the order they were produced.
//
// The height at which each hash was stored is recorded alongside it so that
// inclusion proofs can order sibling hashes from the leaf upward.
type PartialMerkleTree struct {
	// numLeaves is the total number of leaves the tree was built over.
	numLeaves uint32

	// bits holds the node-is-parent-of-matched-leaf flags in traversal
	// order.
	bits []bool

	// hashes holds the stored leaf and subtree hashes in traversal
	// order.
	hashes []chainhash.Hash

	// heights holds the height at which each stored hash was produced.
	heights []uint32
}

// NewPartialMerkleTree builds a partial merkle tree over the passed leaf
// hashes, with matches flagging the leaves whose position the encoding must
// reveal.  The two slices must have the same non-zero length.
func NewPartialMerkleTree(leaves []chainhash.Hash, matches []bool) (*PartialMerkleTree, error) {
	// A merkle tree over zero leaves has no root, and a match flag is
	// required for every leaf.
	if len(leaves) == 0 {
		return nil, fmt.Errorf("%w: no leaves", ErrMastBuild)
	}
	if len(leaves) != len(matches) {
		return nil, fmt.Errorf(
			"%w: %d leaves with %d match flags", ErrMastBuild,
			len(leaves), len(matches),
		)
	}

	pmt := &PartialMerkleTree{
		numLeaves: uint32(len(leaves)),
		bits:      make([]bool, 0, len(leaves)),
	}

	pmt.traverseAndBuild(pmt.calcTreeHeight(), 0, leaves, matches)

	return pmt, nil
}

// NumLeaves returns the total number of leaves the tree was built over.
func (p *PartialMerkleTree) NumLeaves() uint32 {
	return p.numLeaves
}

// calcTreeWidth returns the number of nodes of the merkle tree at the given
// height.
func (p *PartialMerkleTree) calcTreeWidth(height uint32) uint32 {
	return (p.numLeaves + (1 << height) - 1) >> height
}

// calcTreeHeight returns the height of the merkle tree: the smallest height
// at which the tree narrows to a single node.
func (p *PartialMerkleTree) calcTreeHeight() uint32 {
	height := uint32(0)
	for p.calcTreeWidth(height) > 1 {
		height++
	}

	return height
}

// calcHash returns the hash of the node at the given height and position.
// At height 0 this is the leaf itself.  A missing right child duplicates the
// left child's hash, which TaggedBranch folds back without re-hashing.
func (p *PartialMerkleTree) calcHash(height, pos uint32, leaves []chainhash.Hash) chainhash.Hash {
	if height == 0 {
		return leaves[pos]
	}

	left := p.calcHash(height-1, pos*2, leaves)
	var right chainhash.Hash
	if pos*2+1 < p.calcTreeWidth(height-1) {
		right = p.calcHash(height-1, pos*2+1, leaves)
	} else {
		right = left
	}

	return TaggedBranch(left, right)
}

// traverseAndBuild builds the partial merkle tree using a recursive
// depth-first approach.  As it calculates the hashes, it also records
// whether each node is the parent of a matched leaf along with the hashes
// and storage heights of all pruned subtrees.
func (p *PartialMerkleTree) traverseAndBuild(height, pos uint32,
	leaves []chainhash.Hash, matches []bool) {

	// Determine whether this node is the parent of at least one matched
	// leaf.
	var isParent bool
	for i := pos << height; i < (pos+1)<<height && i < p.numLeaves; i++ {
		isParent = isParent || matches[i]
	}
	p.bits = append(p.bits, isParent)

	// When the node is a leaf or not the parent of a matched leaf, store
	// its hash and stop descending.  Every leaf position therefore
	// contributes a stored hash on some path, regardless of its flag.
	if height == 0 || !isParent {
		p.hashes = append(p.hashes, p.calcHash(height, pos, leaves))
		p.heights = append(p.heights, height)
		return
	}

	// Descend into the left child, and the right child if there is one.
	p.traverseAndBuild(height-1, pos*2, leaves, matches)
	if pos*2+1 < p.calcTreeWidth(height-1) {
		p.traverseAndBuild(height-1, pos*2+1, leaves, matches)
	}
}

// maxLeavesPerTree is the maximum number of leaves a serialized tree may
// claim.  Every count read by Deserialize is checked against a bound derived
// from it before any allocation happens.
const maxLeavesPerTree = 1 << 20

// traversalCursor tracks consumption of the stored bits and hashes while the
// extraction traversal replays the build traversal.
type traversalCursor struct {
	bitsUsed   uint32
	hashesUsed uint32
}

// ExtractMatches replays the depth-first traversal that produced the tree,
// authenticating the stored bits and hashes, and returns the merkle root
// together with the matched leaf hashes and their leaf positions.
func (p *PartialMerkleTree) ExtractMatches() (*chainhash.Hash, []chainhash.Hash, []uint32, error) {
	// An empty set will not work.
	if p.numLeaves == 0 {
		return nil, nil, nil, ErrNoLeaves
	}

	// There can never be more hashes provided than one for every leaf.
	if uint32(len(p.hashes)) > p.numLeaves {
		return nil, nil, nil, ErrTooManyHashes
	}

	// There must be at least one bit per stored hash.
	if len(p.bits) < len(p.hashes) {
		return nil, nil, nil, ErrTooFewBits
	}

	var (
		cursor  traversalCursor
		matches []chainhash.Hash
		indexes []uint32
	)
	root, err := p.traverseAndExtract(
		p.calcTreeHeight(), 0, &cursor, &matches, &indexes,
	)
	if err != nil {
		return nil, nil, nil, err
	}

	// Verify that all bits were consumed, modulo the padding caused by
	// packing them into bytes.
	if (cursor.bitsUsed+7)/8 != (uint32(len(p.bits))+7)/8 {
		return nil, nil, nil, ErrUnconsumedBits
	}

	// Verify that all hashes were consumed.
	if cursor.hashesUsed != uint32(len(p.hashes)) {
		return nil, nil, nil, ErrUnconsumedHashes
	}

	return &root, matches, indexes, nil
}

// traverseAndExtract traverses the tree nodes depth-first, consuming the
// bits and hashes produced by traverseAndBuild, and returns the hash of the
// node at the given height and position.  Matched leaves and their positions
// accumulate into matches and indexes.
func (p *PartialMerkleTree) traverseAndExtract(height, pos uint32,
	cursor *traversalCursor, matches *[]chainhash.Hash,
	indexes *[]uint32) (chainhash.Hash, error) {

	if cursor.bitsUsed >= uint32(len(p.bits)) {
		return chainhash.Hash{}, ErrBitsOverflow
	}
	isParent := p.bits[cursor.bitsUsed]
	cursor.bitsUsed++

	// At height 0, or when nothing interesting lies below, the stored
	// hash stands in for the whole subtree.
	if height == 0 || !isParent {
		if cursor.hashesUsed >= uint32(len(p.hashes)) {
			return chainhash.Hash{}, ErrHashesOverflow
		}
		hash := p.hashes[cursor.hashesUsed]
		cursor.hashesUsed++

		if height == 0 && isParent {
			*matches = append(*matches, hash)
			*indexes = append(*indexes, pos)
		}

		return hash, nil
	}

	// Otherwise descend into the subtrees and combine their hashes on
	// the way back up.
	left, err := p.traverseAndExtract(
		height-1, pos*2, cursor, matches, indexes,
	)
	if err != nil {
		return chainhash.Hash{}, err
	}

	var right chainhash.Hash
	if pos*2+1 < p.calcTreeWidth(height-1) {
		right, err = p.traverseAndExtract(
			height-1, pos*2+1, cursor, matches, indexes,
		)
		if err != nil {
			return chainhash.Hash{}, err
		}

		// Distinct subtrees can never hash identically, so equal
		// siblings signal a crafted encoding.
		if right == left {
			return chainhash.Hash{}, ErrIdenticalHashes
		}
	} else {
		right = left
	}

	return TaggedBranch(left, right), nil
}

// CollectedHashes returns every stored hash except those equal to filter,
// ordered by the height at which they were stored, ascending.  Hashes stored
// at the same height keep their traversal order.  With filter set to the
// leaf being proven, the result is exactly the sibling path of an inclusion
// proof, from the leaf level upward.
func (p *PartialMerkleTree) CollectedHashes(filter chainhash.Hash) []chainhash.Hash {
	type nodeAtHeight struct {
		hash   chainhash.Hash
		height uint32
	}

	nodes := make([]nodeAtHeight, 0, len(p.hashes))
	for i, hash := range p.hashes {
		if hash == filter {
			continue
		}
		nodes = append(nodes, nodeAtHeight{
			hash:   hash,
			height: p.heights[i],
		})
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].height < nodes[j].height
	})

	collected := make([]chainhash.Hash, len(nodes))
	for i, node := range nodes {
		collected[i] = node.hash
	}

	return collected
}

// Serialize encodes the partial merkle tree into w using the format:
//
//	uint32      total number of leaves
//	varint      number of hashes
//	uint256[]   hashes in traversal order
//	varint      number of flag bytes
//	byte[]      flag bits packed per 8 in a byte, least significant first
//	varint      number of heights (equal to the number of hashes)
//	uint32[]    storage height of each hash
func (p *PartialMerkleTree) Serialize(w io.Writer) error {
	var numLeavesBytes [4]byte
	binary.LittleEndian.PutUint32(numLeavesBytes[:], p.numLeaves)
	if _, err := w.Write(numLeavesBytes[:]); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(p.hashes))); err != nil {
		return err
	}
	for i := range p.hashes {
		if _, err := w.Write(p.hashes[i][:]); err != nil {
			return err
		}
	}

	flagBytes := make([]byte, (len(p.bits)+7)/8)
	for i, bit := range p.bits {
		if bit {
			flagBytes[i/8] |= 1 << (uint(i) % 8)
		}
	}
	if err := wire.WriteVarInt(w, 0, uint64(len(flagBytes))); err != nil {
		return err
	}
	if _, err := w.Write(flagBytes); err != nil {
		return err
	}

	if err := wire.WriteVarInt(w, 0, uint64(len(p.heights))); err != nil {
		return err
	}
	var heightBytes [4]byte
	for _, height := range p.heights {
		binary.LittleEndian.PutUint32(heightBytes[:], height)
		if _, err := w.Write(heightBytes[:]); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize decodes a partial merkle tree from r using the format
// described by Serialize.  Structural bounds are enforced here; full
// authentication of the decoded tree happens in ExtractMatches.
func (p *PartialMerkleTree) Deserialize(r io.Reader) error {
	var numLeavesBytes [4]byte
	if _, err := io.ReadFull(r, numLeavesBytes[:]); err != nil {
		return err
	}
	numLeaves := binary.LittleEndian.Uint32(numLeavesBytes[:])
	if numLeaves > maxLeavesPerTree {
		return fmt.Errorf(
			"%w: %d leaves exceeds max %d", ErrInvalidEncoding,
			numLeaves, maxLeavesPerTree,
		)
	}

	numHashes, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if numHashes > uint64(numLeaves) {
		return ErrTooManyHashes
	}
	hashes := make([]chainhash.Hash, numHashes)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return err
		}
	}

	// The traversal stores at most one bit per node of the partial tree,
	// which is bounded by two bits per leaf.
	numFlagBytes, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if numFlagBytes > (2*uint64(numLeaves)+7)/8 {
		return fmt.Errorf(
			"%w: %d flag bytes for %d leaves", ErrInvalidEncoding,
			numFlagBytes, numLeaves,
		)
	}
	flagBytes := make([]byte, numFlagBytes)
	if _, err := io.ReadFull(r, flagBytes); err != nil {
		return err
	}
	bits := make([]bool, 8*len(flagBytes))
	for i := range bits {
		bits[i] = flagBytes[i/8]&(1<<(uint(i)%8)) != 0
	}

	numHeights, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if numHeights != numHashes {
		return fmt.Errorf(
			"%w: %d heights for %d hashes", ErrInvalidEncoding,
			numHeights, numHashes,
		)
	}
	heights := make([]uint32, numHeights)
	var heightBytes [4]byte
	for i := range heights {
		if _, err := io.ReadFull(r, heightBytes[:]); err != nil {
			return err
		}
		heights[i] = binary.LittleEndian.Uint32(heightBytes[:])
	}

	p.numLeaves = numLeaves
	p.bits = bits
	p.hashes = hashes
	p.heights = heights

	return nil
}
