// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mast

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// GenerateRedeemScript builds a classic m-of-n multisig redeem script over
// the passed public keys:
//
//	OP_m <key_1> ... <key_n> OP_n OP_CHECKMULTISIG
//
// Keys are sorted by their compressed serialization so the script is
// deterministic for a given set.  At most 15 keys fit the CHECKMULTISIG
// small-integer opcodes.
func GenerateRedeemScript(pubKeys []*btcec.PublicKey, sigNum uint32) ([]byte, error) {
	keySet := make([]*btcec.PublicKey, len(pubKeys))
	copy(keySet, pubKeys)
	sort.SliceStable(keySet, func(i, j int) bool {
		return bytes.Compare(
			keySet[i].SerializeCompressed(),
			keySet[j].SerializeCompressed(),
		) < 0
	})

	sum := uint32(len(keySet))
	if sigNum == 0 || sigNum > sum || sum > 15 {
		return nil, fmt.Errorf(
			"%w: %d of %d", ErrInvalidRedeemLength, sigNum, sum,
		)
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_1 + byte(sigNum) - 1)
	for _, key := range keySet {
		builder.AddData(key.SerializeCompressed())
	}
	builder.AddOp(txscript.OP_1 + byte(sum) - 1)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	return builder.Script()
}

// GenerateP2SHAddress encodes the passed redeem script as a pay-to-script-
// hash address for the given network.  Network names follow the same rules
// as Mast.GenerateAddress.
func GenerateP2SHAddress(redeemScript []byte, network string) (string, error) {
	addr, err := btcutil.NewAddressScriptHash(
		redeemScript, netParams(network),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodeAddress, err)
	}

	return addr.EncodeAddress(), nil
}
