// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// newTestMast builds a mast over the three reference participants with a
// plain 2-of-3 threshold.
func newTestMast(t *testing.T) *Mast {
	t.Helper()

	tree, err := NewMast([]*btcec.PublicKey{
		mustParsePubKey(t, pubKeyHexA),
		mustParsePubKey(t, pubKeyHexB),
		mustParsePubKey(t, pubKeyHexC),
	}, 2, 1)
	require.NoError(t, err)

	return tree
}

// TestNewMastInvalidThreshold ensures out-of-range thresholds are rejected.
func TestNewMastInvalidThreshold(t *testing.T) {
	t.Parallel()

	keys := []*btcec.PublicKey{
		mustParsePubKey(t, pubKeyHexA),
		mustParsePubKey(t, pubKeyHexB),
	}

	_, err := NewMast(keys, 0, 1)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewMast(keys, 3, 1)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = NewMast(keys, 2, 0)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

// TestAggPubkeysToPersonal checks the aggregate-to-participant mapping
// against the reference vector.
func TestAggPubkeysToPersonal(t *testing.T) {
	t.Parallel()

	tree := newTestMast(t)
	mapping := tree.AggPubkeysToPersonal()
	require.Len(t, mapping, 3)

	type flatMapping struct {
		agg     string
		persons []string
	}
	got := make([]flatMapping, len(mapping))
	for i, m := range mapping {
		persons := make([]string, len(m.PersonPubkeys))
		for j, key := range m.PersonPubkeys {
			persons[j] = hex.EncodeToString(
				key.SerializeUncompressed(),
			)
		}
		got[i] = flatMapping{
			agg: hex.EncodeToString(
				m.AggregatePubkey.SerializeUncompressed(),
			),
			persons: persons,
		}
	}

	require.Equal(t, []flatMapping{
		{
			agg:     "0443498bc300426635cd1876077e3993bec1168d6c6fa1138f893ce41a5f51bf0a22a2a7a85830e1f9facf02488328be04ece354730e19ce2766d5dca1478483cd",
			persons: []string{pubKeyHexC, pubKeyHexB},
		},
		{
			agg:     "04be1979e5e167d216a1229315844990606c2aba2d582472492a9eec7c9466460a286a71973e72f8d057235855253707ba73b5436d6170e702edf2ed5df46722b2",
			persons: []string{pubKeyHexC, pubKeyHexA},
		},
		{
			agg:     "04e7c92d2ef4294389c385fedd5387fba806687f5aba1c7ba285093dacd69354d9b4f9ea87450c75954ade455677475e92fb5e303db36753c2ea20e47d3e939662",
			persons: []string{pubKeyHexB, pubKeyHexA},
		},
	}, got)
}

// TestMastCalcRoot checks the merkle root of the reference participant set
// and that repeated calls are deterministic.
func TestMastCalcRoot(t *testing.T) {
	t.Parallel()

	tree := newTestMast(t)

	root, err := tree.CalcRoot()
	require.NoError(t, err)
	require.Equal(t,
		"69e1de34d13d69fd894d708d656d0557cacaa18a093a6e86327a991d95c6c8e1",
		hex.EncodeToString(root[:]),
	)

	// Rebuilding the mast from scratch reproduces the same root.
	again, err := newTestMast(t).CalcRoot()
	require.NoError(t, err)
	require.Equal(t, *root, *again)
}

// TestMastGenerateMerkleProof checks the serialized proofs against the
// reference vectors, covering both the plain and the grouped construction.
func TestMastGenerateMerkleProof(t *testing.T) {
	t.Parallel()

	// 2-of-3, no grouping.
	tree := newTestMast(t)
	aggKey := mustParsePubKey(t,
		"04e7c92d2ef4294389c385fedd5387fba806687f5aba1c7ba285093dacd69354d9b4f9ea87450c75954ade455677475e92fb5e303db36753c2ea20e47d3e939662")

	proof, err := tree.GenerateMerkleProof(aggKey)
	require.NoError(t, err)
	require.Equal(t,
		"c0f4152c91b2c78a3524e7858c72ffa360da59e7c3c4d67d6787cf1e3bfe1684c1e38e30c81fc61186d0ed3956b5e49bd175178a638d1410e64f7716697a7e0ccd",
		hex.EncodeToString(proof),
	)

	// 4-of-6 with participants bundled into groups of two.
	keyA := mustParsePubKey(t, pubKeyHexA)
	keyB := mustParsePubKey(t, pubKeyHexB)
	keyE := mustParsePubKey(t, pubKeyHexE)
	keyF := mustParsePubKey(t, pubKeyHexF)

	grouped, err := NewMast([]*btcec.PublicKey{
		keyA, keyB,
		mustParsePubKey(t, pubKeyHexC),
		mustParsePubKey(t, pubKeyHexD),
		keyE, keyF,
	}, 4, 2)
	require.NoError(t, err)

	aggABEF, err := AggregateKeys(
		[]*btcec.PublicKey{keyA, keyB, keyE, keyF},
	)
	require.NoError(t, err)

	proof, err = grouped.GenerateMerkleProof(aggABEF.FinalKey)
	require.NoError(t, err)
	require.Equal(t,
		"c1b1194ddbb297bb0fc26d39bfaa9ac4bec4b458775e33d600edc068de31c565231651a7ddda9b73221f02f1f9ade1032c7660ed5ed17f24d6c395b769f2125d4003bb3059b56302e1d3ab177e560459a361f6eaf4ce31aea50f991d2652b964b2",
		hex.EncodeToString(proof),
	)

	// A combination that the grouping never produces has no proof.
	aggABCF, err := AggregateKeys([]*btcec.PublicKey{
		keyA, keyB, mustParsePubKey(t, pubKeyHexC), keyF,
	})
	require.NoError(t, err)

	_, err = grouped.GenerateMerkleProof(aggABCF.FinalKey)
	require.ErrorIs(t, err, ErrProofPubKeyNotFound)
}

// TestMastProofRoundTrip verifies that, for every aggregate key in the
// tree, folding the proof's sibling hashes onto the revealed leaf
// reproduces the merkle root, and that the proof header matches the tweaked
// output key.
func TestMastProofRoundTrip(t *testing.T) {
	t.Parallel()

	tree := newTestMast(t)

	root, err := tree.CalcRoot()
	require.NoError(t, err)

	tweakedKey, err := TweakPubKey(tree.InnerPubkey, root)
	require.NoError(t, err)

	for _, aggKey := range tree.Pubkeys {
		proof, err := tree.GenerateMerkleProof(aggKey)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(proof), 33)
		require.Equal(t, 0, (len(proof)-33)%32)

		// Header: version byte with output key parity, then the
		// x-only inner key.
		wantFirst := byte(TapscriptVer & 0xfe)
		if isOddY(tweakedKey) {
			wantFirst |= 0x01
		}
		require.Equal(t, wantFirst, proof[0])
		require.Equal(t, xCoor(tree.InnerPubkey), proof[1:33])

		// Folding the siblings onto the leaf rebuilds the root.
		rebuilt, err := TaggedLeaf(aggKey)
		require.NoError(t, err)
		for off := 33; off < len(proof); off += 32 {
			var sibling chainhash.Hash
			copy(sibling[:], proof[off:off+32])
			rebuilt = TaggedBranch(rebuilt, sibling)
		}
		require.Equal(t, *root, rebuilt)
	}
}

// TestMastGenerateAddress checks the mainnet taproot address of the known
// alice/bob/charlie participant set, plus the prefix behavior of the other
// network names.
func TestMastGenerateAddress(t *testing.T) {
	t.Parallel()

	tree, err := NewMast([]*btcec.PublicKey{
		mustParsePubKey(t, "0283f579dd2380bd31355d066086e1b4d46b518987c1f8a64d4c0101560280eae2"),
		mustParsePubKey(t, "027a0868a14bd18e2e45ff3ad960f892df8d0edd1a5685f0a1dc63c7986d4ad55d"),
		mustParsePubKey(t, "02c9929543dfa1e0bb84891acd47bfa6546b05e26b7a04af8eb6765fcc969d565f"),
	}, 2, 1)
	require.NoError(t, err)

	addr, err := tree.GenerateAddress("Mainnet")
	require.NoError(t, err)
	require.Equal(t,
		"bc1pn202yeugfa25nssxk2hv902kmxrnp7g9xt487u256n20jgahuwas6syxhp",
		addr,
	)

	// Network names are case-insensitive and unknown names fall back to
	// mainnet.
	addr2, err := tree.GenerateAddress("unknown-net")
	require.NoError(t, err)
	require.Equal(t, addr, addr2)

	testnetAddr, err := tree.GenerateAddress("Testnet")
	require.NoError(t, err)
	require.Equal(t, "tb1", testnetAddr[:3])

	regtestAddr, err := tree.GenerateAddress("regtest")
	require.NoError(t, err)
	require.Equal(t, "bcrt1", regtestAddr[:5])
}
