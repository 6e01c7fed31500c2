// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// pubKeyBytesLenUncompressed is the length of the 0x04-prefixed uncompressed
// public key serialization.
const pubKeyBytesLenUncompressed = 65

// TagKeyAgg is the tagged hash tag used to compute the aggregation
// coefficient for each public key.
var TagKeyAgg = []byte("BIP0340/aggregate")

// sortableKeys defines a type of slice of public keys that implements the
// sort interface.  Keys order by their uncompressed serialization, so two
// keys sharing an x coordinate still order deterministically by their y
// coordinate.
type sortableKeys []*btcec.PublicKey

// Less reports whether the element with index i must sort before the element
// with index j.
func (s sortableKeys) Less(i, j int) bool {
	keyIBytes := s[i].SerializeUncompressed()
	keyJBytes := s[j].SerializeUncompressed()

	return bytes.Compare(keyIBytes, keyJBytes) == -1
}

// Swap swaps the elements with indexes i and j.
func (s sortableKeys) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Len is the number of elements in the collection.
func (s sortableKeys) Len() int {
	return len(s)
}

// sortKeys returns a new slice holding the passed public keys sorted in
// lexicographical order of their uncompressed serialization.  The input
// slice is not modified.
func sortKeys(keys []*btcec.PublicKey) []*btcec.PublicKey {
	keySet := make(sortableKeys, len(keys))
	copy(keySet, keys)
	if !sort.IsSorted(keySet) {
		sort.Sort(keySet)
	}

	return keySet
}

// ParsePubKey parses a public key from its 65-byte uncompressed, 33-byte
// compressed, or 32-byte x-only serialization.  X-only keys are lifted with
// an even y coordinate per BIP 340.
func ParsePubKey(pubKeyBytes []byte) (*btcec.PublicKey, error) {
	switch len(pubKeyBytes) {
	case pubKeyBytesLenUncompressed, btcec.PubKeyBytesLenCompressed:
		pubKey, err := btcec.ParsePubKey(pubKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pubKey, nil

	case schnorr.PubKeyBytesLen:
		pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pubKey, nil

	default:
		return nil, ErrInvalidInputLength
	}
}

// ParsePubKeyHex parses a public key from the hex encoding of any of the
// serializations accepted by ParsePubKey.
func ParsePubKeyHex(pubKeyStr string) (*btcec.PublicKey, error) {
	pubKeyBytes, err := hex.DecodeString(pubKeyStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	return ParsePubKey(pubKeyBytes)
}

// xCoor returns the 32-byte x coordinate of the passed public key.  This is
// the same as the x-only serialization of the key.
func xCoor(pubKey *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pubKey)
}

// isOddY returns whether the y coordinate of the passed public key is odd.
func isOddY(pubKey *btcec.PublicKey) bool {
	return pubKey.SerializeCompressed()[0] == secp.PubKeyFormatCompressedOdd
}

// isInfinity returns whether the passed jacobian point is the point at
// infinity.
func isInfinity(point *btcec.JacobianPoint) bool {
	return (point.X.IsZero() && point.Y.IsZero()) || point.Z.IsZero()
}

// AggregateKey houses an aggregate public key together with the per-key
// coefficients that produced it.
type AggregateKey struct {
	// FinalKey is the scalar-weighted sum of the input keys.
	FinalKey *btcec.PublicKey

	// Coefficients holds the aggregation coefficient of each input key,
	// in sorted key order.
	Coefficients []*btcec.ModNScalar
}

// aggregationCoefficient computes the key aggregation coefficient for the
// key at the given index of the sorted key set.  The coefficient is computed
// as:
//
//	H(tag=BIP0340/aggregate, x_1 || x_2 || ... || x_n || x_i)
//
// where x_j is the 32-byte x coordinate of the j-th sorted key.  Note that
// the preimage re-lists the x coordinate of every key for each coefficient.
func aggregationCoefficient(sortedXCoors [][]byte, keyIdx int) (*btcec.ModNScalar, error) {
	var preimage bytes.Buffer
	for _, xBytes := range sortedXCoors {
		preimage.Write(xBytes)
	}
	preimage.Write(sortedXCoors[keyIdx])

	coeffHash := chainhash.TaggedHash(TagKeyAgg, preimage.Bytes())

	var coeff btcec.ModNScalar
	if overflow := coeff.SetBytes((*[32]byte)(coeffHash)); overflow != 0 {
		return nil, ErrInvalidPrivateKey
	}
	if coeff.IsZero() {
		return nil, ErrInvalidPrivateKey
	}

	return &coeff, nil
}

// AggregateKeys combines a set of public keys into a single aggregate key
// using a deterministic per-key coefficient.  The keys are sorted by their
// uncompressed serialization before the coefficients are derived, so the
// result does not depend on the order of the input.  Duplicate keys are
// retained.
func AggregateKeys(keys []*btcec.PublicKey) (*AggregateKey, error) {
	if len(keys) == 0 {
		return nil, ErrNoPubKeys
	}

	keys = sortKeys(keys)

	// Every x coordinate must be a valid scalar as it feeds the
	// coefficient hash in scalar form.
	xCoors := make([][]byte, len(keys))
	for i, key := range keys {
		xBytes := xCoor(key)

		var xScalar btcec.ModNScalar
		if overflow := xScalar.SetByteSlice(xBytes); overflow {
			return nil, ErrInvalidPrivateKey
		}

		xCoors[i] = xBytes
	}

	// For each key, compute the blinded key a_i*P_i, where a_i is the
	// aggregation coefficient for that key, then accumulate the result
	// into the final key: P = a_1*P_1 + a_2*P_2 ... a_n*P_n.
	coeffs := make([]*btcec.ModNScalar, len(keys))
	var finalKeyJ btcec.JacobianPoint
	for i, key := range keys {
		coeff, err := aggregationCoefficient(xCoors, i)
		if err != nil {
			return nil, err
		}
		coeffs[i] = coeff

		var keyJ btcec.JacobianPoint
		key.AsJacobian(&keyJ)

		var scaledKeyJ btcec.JacobianPoint
		btcec.ScalarMultNonConst(coeff, &keyJ, &scaledKeyJ)

		btcec.AddNonConst(&finalKeyJ, &scaledKeyJ, &finalKeyJ)

		// A partial sum at the point at infinity makes the aggregate
		// unusable as an output key.
		if i > 0 && isInfinity(&finalKeyJ) {
			return nil, ErrInvalidPublicKey
		}
	}

	finalKeyJ.ToAffine()

	return &AggregateKey{
		FinalKey:     btcec.NewPublicKey(&finalKeyJ.X, &finalKeyJ.Y),
		Coefficients: coeffs,
	}, nil
}
