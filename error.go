// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"errors"
)

// The errors returned by this package are deterministic functions of their
// inputs, so retrying a failed call with the same arguments always reproduces
// the same error.  Higher layers wrap these sentinels with context via %w, so
// callers should match them with errors.Is.
var (
	// ErrInvalidPublicKey is returned when key bytes do not describe a
	// valid curve point, or when point arithmetic degenerates to the
	// point at infinity.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey is returned when scalar bytes are not a valid
	// value modulo the curve order, or when a scalar that must be
	// non-zero is zero.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidInputLength is returned when key material has a length
	// other than the supported 32, 33 or 65 byte encodings.
	ErrInvalidInputLength = errors.New("invalid input length")

	// ErrNoPubKeys is returned when key aggregation is attempted over an
	// empty set of public keys.
	ErrNoPubKeys = errors.New("no public keys to aggregate")

	// ErrInvalidThreshold is returned when the requested signing
	// threshold is zero or exceeds the number of participants.
	ErrInvalidThreshold = errors.New("invalid signing threshold")

	// ErrMastBuild is returned when the script tree for a mast instance
	// cannot be built.  It wraps the underlying tree error.
	ErrMastBuild = errors.New("unable to build mast tree")

	// ErrProofPubKeyNotFound is returned when a merkle proof is requested
	// for a public key that is not among the aggregate keys committed to
	// by the tree.
	ErrProofPubKeyNotFound = errors.New("public key is not committed by the mast tree")

	// ErrEncodeAddress is returned when the tweaked output key cannot be
	// encoded as an address for the requested network.
	ErrEncodeAddress = errors.New("unable to encode address")

	// ErrNoLeaves is returned when extraction is attempted on a partial
	// merkle tree without any leaves.
	ErrNoLeaves = errors.New("no leaves in partial merkle tree")

	// ErrTooManyHashes is returned when a partial merkle tree stores more
	// hashes than it has leaves.
	ErrTooManyHashes = errors.New("more hashes than leaves")

	// ErrTooFewBits is returned when a partial merkle tree stores fewer
	// flag bits than hashes.
	ErrTooFewBits = errors.New("fewer bits than hashes")

	// ErrBitsOverflow is returned when the extraction traversal consumes
	// more flag bits than the tree stores.
	ErrBitsOverflow = errors.New("overflowed the bits array")

	// ErrHashesOverflow is returned when the extraction traversal
	// consumes more hashes than the tree stores.
	ErrHashesOverflow = errors.New("overflowed the hash array")

	// ErrIdenticalHashes is returned when both children of an internal
	// node hash identically.  Genuine trees never contain duplicate
	// sibling hashes, so this signals a malformed or adversarial
	// encoding.
	ErrIdenticalHashes = errors.New("found identical sibling hashes")

	// ErrUnconsumedBits is returned when flag bits beyond byte padding
	// remain after the extraction traversal completes.
	ErrUnconsumedBits = errors.New("not all bits were consumed")

	// ErrUnconsumedHashes is returned when hashes remain after the
	// extraction traversal completes.
	ErrUnconsumedHashes = errors.New("not all hashes were consumed")

	// ErrInvalidEncoding is returned when a serialized partial merkle
	// tree is structurally malformed.
	ErrInvalidEncoding = errors.New("malformed partial merkle tree encoding")

	// ErrInvalidRedeemLength is returned when a redeem script is
	// requested for more than 15 keys or for a signature count exceeding
	// the key count.
	ErrInvalidRedeemLength = errors.New("invalid redeem script key count")
)
