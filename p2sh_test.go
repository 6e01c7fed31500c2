// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// TestGenerateRedeemScript checks the layout of the 2-of-3 multisig redeem
// script and that key order in the input does not matter.
func TestGenerateRedeemScript(t *testing.T) {
	t.Parallel()

	keys := []*btcec.PublicKey{
		mustParsePubKey(t, pubKeyHexA),
		mustParsePubKey(t, pubKeyHexB),
		mustParsePubKey(t, pubKeyHexC),
	}

	script, err := GenerateRedeemScript(keys, 2)
	require.NoError(t, err)

	// OP_2, three 33-byte pushes, OP_3, OP_CHECKMULTISIG.
	require.Len(t, script, 1+3*34+1+1)
	require.Equal(t, byte(txscript.OP_2), script[0])
	require.Equal(t, byte(txscript.OP_3), script[len(script)-2])
	require.Equal(t, byte(txscript.OP_CHECKMULTISIG), script[len(script)-1])
	for i := 0; i < 3; i++ {
		require.Equal(t, byte(33), script[1+i*34])
	}

	// Shuffled input yields the identical script.
	shuffled, err := GenerateRedeemScript([]*btcec.PublicKey{
		keys[2], keys[0], keys[1],
	}, 2)
	require.NoError(t, err)
	require.Equal(t, script, shuffled)
}

// TestGenerateRedeemScriptErrors covers the threshold and key count limits.
func TestGenerateRedeemScriptErrors(t *testing.T) {
	t.Parallel()

	keys := []*btcec.PublicKey{
		mustParsePubKey(t, pubKeyHexA),
		mustParsePubKey(t, pubKeyHexB),
	}

	_, err := GenerateRedeemScript(keys, 0)
	require.ErrorIs(t, err, ErrInvalidRedeemLength)

	_, err = GenerateRedeemScript(keys, 3)
	require.ErrorIs(t, err, ErrInvalidRedeemLength)

	// 16 keys exceed the CHECKMULTISIG small-integer opcodes.
	many := make([]*btcec.PublicKey, 16)
	for i := range many {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		many[i] = priv.PubKey()
	}
	_, err = GenerateRedeemScript(many, 2)
	require.ErrorIs(t, err, ErrInvalidRedeemLength)
}

// TestGenerateP2SHAddress checks the address version prefix per network.
func TestGenerateP2SHAddress(t *testing.T) {
	t.Parallel()

	script, err := GenerateRedeemScript([]*btcec.PublicKey{
		mustParsePubKey(t, pubKeyHexA),
		mustParsePubKey(t, pubKeyHexB),
		mustParsePubKey(t, pubKeyHexC),
	}, 2)
	require.NoError(t, err)

	mainnet, err := GenerateP2SHAddress(script, "mainnet")
	require.NoError(t, err)
	require.Equal(t, byte('3'), mainnet[0])

	testnet, err := GenerateP2SHAddress(script, "testnet")
	require.NoError(t, err)
	require.Equal(t, byte('2'), testnet[0])

	// Address derivation is deterministic.
	again, err := GenerateP2SHAddress(script, "mainnet")
	require.NoError(t, err)
	require.Equal(t, mainnet, again)
}
