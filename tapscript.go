// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// TapscriptVer is the tapscript leaf version used for all leaves produced by
// this package.  The semantics of this version are defined in BIP 342.
const TapscriptVer = 0xc0

// leafScript returns the script committed to by a leaf: a push of the 32-byte
// x coordinate of the aggregate key followed by OP_CHECKSIG.
func leafScript(pubKey *btcec.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddData(xCoor(pubKey)).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// TaggedLeaf computes the tapscript leaf hash committing to the passed
// aggregate public key:
//
//	tagged_hash("TapLeaf", leaf_version || compact_size(script) || script)
func TaggedLeaf(pubKey *btcec.PublicKey) (chainhash.Hash, error) {
	script, err := leafScript(pubKey)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf(
			"%w: %v", ErrInvalidPublicKey, err,
		)
	}

	return txscript.NewTapLeaf(TapscriptVer, script).TapHash(), nil
}

// TaggedBranch computes the hash of an internal tree node from its left and
// right children:
//
//	tagged_hash("TapBranch", min(left, right) || max(left, right))
//
// Identical children occur when an odd leaf count duplicates the left half;
// in that case the child hash is returned unchanged rather than re-hashed.
func TaggedBranch(left, right chainhash.Hash) chainhash.Hash {
	if left == right {
		return left
	}

	// The two nodes hash in lexicographic order per BIP 341.
	if bytes.Compare(right[:], left[:]) < 0 {
		left, right = right, left
	}

	return *chainhash.TaggedHash(chainhash.TagTapBranch, left[:], right[:])
}

// TweakPubKey commits the merkle root of the script tree into the inner
// aggregate key, producing the final taproot output key:
//
//	t = tagged_hash("TapTweak", inner_x || root)
//	output = t*G + inner
//
// with inner negated first when its y coordinate is odd, per the even-y
// normalization of BIP 341.
func TweakPubKey(innerPubKey *btcec.PublicKey, root *chainhash.Hash) (*btcec.PublicKey, error) {
	tweakHash := chainhash.TaggedHash(
		chainhash.TagTapTweak, xCoor(innerPubKey), root[:],
	)

	var tweakScalar btcec.ModNScalar
	if overflow := tweakScalar.SetBytes((*[32]byte)(tweakHash)); overflow != 0 {
		return nil, ErrInvalidPrivateKey
	}
	if tweakScalar.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	var tweakPointJ btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPointJ)

	var innerJ btcec.JacobianPoint
	innerPubKey.AsJacobian(&innerJ)
	if isOddY(innerPubKey) {
		innerJ.Y.Negate(1)
		innerJ.Y.Normalize()
	}

	var outputKeyJ btcec.JacobianPoint
	btcec.AddNonConst(&tweakPointJ, &innerJ, &outputKeyJ)
	if isInfinity(&outputKeyJ) {
		return nil, ErrInvalidPublicKey
	}

	outputKeyJ.ToAffine()

	return btcec.NewPublicKey(&outputKeyJ.X, &outputKeyJ.Y), nil
}
