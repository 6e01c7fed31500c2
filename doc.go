// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mast builds taproot-compatible threshold signature trees.

Given n participant public keys and a threshold m, the package
enumerates every m-of-n combination (optionally bundling participants
into groups), aggregates each combination into a single public key, and
commits the resulting set of spending conditions to a merkle tree of
tapscript leaves. The root is then tweaked into the inner aggregate key
per BIP 341, yielding a witness v1 (taproot) output key and address.

For any combination the package also produces a merkle inclusion proof
in control-block form: the leaf version and output key parity byte, the
x-only inner public key, and the sibling hashes needed to rebuild the
root from the revealed leaf.

The merkle commitment is maintained through a partial merkle tree: a
depth-first encoding of the tree that stores a flag bit per visited
node and a hash for every subtree that is not descended into. The same
traversal replays during extraction, authenticating the encoding and
recovering the root together with the matched leaves.
*/
package mast
