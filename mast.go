// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Mast commits every threshold combination of a participant set to a merkle
// tree of tapscript leaves.  A Mast is built once by NewMast and is
// read-only afterwards; every query method is free of side effects.
type Mast struct {
	// Pubkeys holds the aggregate public key of every threshold
	// combination, sorted ascending by x coordinate.
	Pubkeys []*btcec.PublicKey

	// InnerPubkey is the aggregate public key of all participants, prior
	// to the merkle root tweak.
	InnerPubkey *btcec.PublicKey

	// PersonPubkeys holds the participant public keys, sorted ascending
	// by their uncompressed serialization.
	PersonPubkeys []*btcec.PublicKey

	// Indexes holds, for each entry of Pubkeys, the 1-based indices into
	// PersonPubkeys of the participants that formed it.
	Indexes [][]uint32

	// N is the total number of participants.
	N uint32

	// M is the signing threshold.
	M uint32

	// G is the number of participants bundled into one group.
	G uint32
}

// NewMast creates a mast instance committing to every way threshold of the
// passed participants (bundled into groups of group) can co-sign.
func NewMast(personPubkeys []*btcec.PublicKey, threshold, group uint32) (*Mast, error) {
	n := uint32(len(personPubkeys))
	if threshold == 0 || threshold > n {
		return nil, fmt.Errorf(
			"%w: threshold %d of %d participants",
			ErrInvalidThreshold, threshold, n,
		)
	}
	if group == 0 {
		return nil, fmt.Errorf(
			"%w: group size must be non-zero", ErrInvalidThreshold,
		)
	}

	personPubkeys = sortKeys(personPubkeys)

	innerKey, err := AggregateKeys(personPubkeys)
	if err != nil {
		return nil, err
	}

	pubKeys, indexes, err := generateCombinePubKeys(
		personPubkeys, threshold, group,
	)
	if err != nil {
		return nil, err
	}

	log.Debugf("Built mast with %d combinations for %d participants "+
		"(threshold %d, group size %d)", len(pubKeys), n, threshold,
		group)

	return &Mast{
		Pubkeys:       pubKeys,
		InnerPubkey:   innerKey.FinalKey,
		PersonPubkeys: personPubkeys,
		Indexes:       indexes,
		N:             n,
		M:             threshold,
		G:             group,
	}, nil
}

// PubKeyMapping relates the aggregate public key of one threshold
// combination to the participant keys that formed it.
type PubKeyMapping struct {
	// AggregatePubkey is the combination's aggregate public key.
	AggregatePubkey *btcec.PublicKey

	// PersonPubkeys holds the participant keys behind the aggregate.
	PersonPubkeys []*btcec.PublicKey
}

// AggPubkeysToPersonal returns, for every aggregate public key in the tree,
// the participant public keys that formed it, in tree order.
func (m *Mast) AggPubkeysToPersonal() []PubKeyMapping {
	mapping := make([]PubKeyMapping, len(m.Pubkeys))
	for i, pubKey := range m.Pubkeys {
		personKeys := make([]*btcec.PublicKey, len(m.Indexes[i]))
		for j, idx := range m.Indexes[i] {
			personKeys[j] = m.PersonPubkeys[idx-1]
		}
		mapping[i] = PubKeyMapping{
			AggregatePubkey: pubKey,
			PersonPubkeys:   personKeys,
		}
	}

	return mapping
}

// leafNodes returns the tapscript leaf hash of every aggregate key in tree
// order.
func (m *Mast) leafNodes() ([]chainhash.Hash, error) {
	leaves := make([]chainhash.Hash, len(m.Pubkeys))
	for i, pubKey := range m.Pubkeys {
		leaf, err := TaggedLeaf(pubKey)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}

	return leaves, nil
}

// buildTree builds the partial merkle tree over all leaves with the given
// match flags and extracts its root.
func (m *Mast) buildTree(matches []bool) (*PartialMerkleTree, *chainhash.Hash, error) {
	leaves, err := m.leafNodes()
	if err != nil {
		return nil, nil, err
	}

	pmt, err := NewPartialMerkleTree(leaves, matches)
	if err != nil {
		return nil, nil, err
	}

	root, _, _, err := pmt.ExtractMatches()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMastBuild, err)
	}

	return pmt, root, nil
}

// CalcRoot calculates the merkle root of the script tree.
//
// Only the first leaf is flagged as matched.  The builder stores a hash for
// every leaf position whether or not it is flagged, so the root is complete
// regardless of which leaf carries the flag; a single flag merely keeps the
// traversal honest end to end.
func (m *Mast) CalcRoot() (*chainhash.Hash, error) {
	matches := make([]bool, len(m.Pubkeys))
	if len(matches) > 0 {
		matches[0] = true
	}

	_, root, err := m.buildTree(matches)
	if err != nil {
		return nil, err
	}

	return root, nil
}

// GenerateMerkleProof produces the control-block style inclusion proof for
// the passed aggregate public key:
//
//	1 byte    tapscript version | output key parity
//	32 bytes  x coordinate of the inner public key
//	32*k      sibling hashes, ordered from the leaf level upward
func (m *Mast) GenerateMerkleProof(pubKey *btcec.PublicKey) ([]byte, error) {
	leafIdx := -1
	matches := make([]bool, len(m.Pubkeys))
	for i, aggKey := range m.Pubkeys {
		if aggKey.IsEqual(pubKey) {
			matches[i] = true
			leafIdx = i
		}
	}
	if leafIdx < 0 {
		return nil, ErrProofPubKeyNotFound
	}

	pmt, root, err := m.buildTree(matches)
	if err != nil {
		return nil, err
	}

	tweakedKey, err := TweakPubKey(m.InnerPubkey, root)
	if err != nil {
		return nil, err
	}

	filter, err := TaggedLeaf(m.Pubkeys[leafIdx])
	if err != nil {
		return nil, err
	}

	firstByte := byte(TapscriptVer & 0xfe)
	if isOddY(tweakedKey) {
		firstByte |= 0x01
	}

	siblings := pmt.CollectedHashes(filter)
	proof := make([]byte, 0, 33+32*len(siblings))
	proof = append(proof, firstByte)
	proof = append(proof, xCoor(m.InnerPubkey)...)
	for _, hash := range siblings {
		proof = append(proof, hash[:]...)
	}

	log.Tracef("Generated %d byte merkle proof for leaf %d of %d",
		len(proof), leafIdx, len(m.Pubkeys))

	return proof, nil
}

// GenerateTweakPubkey computes the final taproot output key: the inner
// aggregate key tweaked with the merkle root of the script tree.
func (m *Mast) GenerateTweakPubkey() (*btcec.PublicKey, error) {
	root, err := m.CalcRoot()
	if err != nil {
		return nil, err
	}

	return TweakPubKey(m.InnerPubkey, root)
}

// GenerateAddress encodes the tweaked output key as a witness v1 (taproot)
// address for the given network.  The network is matched case-insensitively
// against mainnet, testnet, signet and regtest; unrecognized values fall
// back to mainnet.
func (m *Mast) GenerateAddress(network string) (string, error) {
	tweakedKey, err := m.GenerateTweakPubkey()
	if err != nil {
		return "", err
	}

	addr, err := btcutil.NewAddressTaproot(
		xCoor(tweakedKey), netParams(network),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeAddress, err)
	}

	return addr.EncodeAddress(), nil
}

// netParams maps a network name onto its chain parameters.
func netParams(network string) *chaincfg.Params {
	switch strings.ToLower(network) {
	case "testnet":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}
