// Copyright (c) 2021-2022 The ChainX developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	mast "github.com/chainx-org/go-mast"
)

type config struct {
	Threshold uint32 `short:"t" long:"threshold" description:"Number of participants required to co-sign (m of n)"`
	Group     uint32 `short:"g" long:"group" description:"Number of participants bundled into one group"`
	Network   string `short:"n" long:"network" description:"Network of the generated address (mainnet, testnet, signet, regtest)"`
	ShowRoot  bool   `long:"root" description:"Also print the merkle root of the script tree"`
	Proof     string `long:"proof" description:"Print the merkle proof for the given aggregate public key (hex)"`
	Verbose   bool   `short:"v" long:"verbose" description:"Enable library debug logging on stderr"`
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cfg := config{
		Threshold: 2,
		Group:     1,
		Network:   "mainnet",
	}
	parser := flags.NewParser(&cfg, flags.Default)
	parser.Usage = "[OPTIONS] PUBKEY..."
	remaining, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return
	}

	if cfg.Verbose {
		backend := btclog.NewBackend(os.Stderr)
		mast.UseLogger(backend.Logger("MAST"))
	}

	if len(remaining) == 0 {
		fatalf("no participant public keys given")
	}

	pubKeys := make([]*btcec.PublicKey, len(remaining))
	for i, keyStr := range remaining {
		pubKey, err := mast.ParsePubKeyHex(keyStr)
		if err != nil {
			fatalf("invalid public key %q: %v", keyStr, err)
		}
		pubKeys[i] = pubKey
	}

	tree, err := mast.NewMast(pubKeys, cfg.Threshold, cfg.Group)
	if err != nil {
		fatalf("cannot build mast: %v", err)
	}

	addr, err := tree.GenerateAddress(cfg.Network)
	if err != nil {
		fatalf("cannot generate address: %v", err)
	}
	fmt.Println(addr)

	if cfg.ShowRoot {
		root, err := tree.CalcRoot()
		if err != nil {
			fatalf("cannot calculate root: %v", err)
		}
		fmt.Printf("root: %s\n", hex.EncodeToString(root[:]))
	}

	if cfg.Proof != "" {
		aggKey, err := mast.ParsePubKeyHex(cfg.Proof)
		if err != nil {
			fatalf("invalid aggregate public key: %v", err)
		}
		proof, err := tree.GenerateMerkleProof(aggKey)
		if err != nil {
			fatalf("cannot generate proof: %v", err)
		}
		fmt.Printf("proof: %s\n", hex.EncodeToString(proof))
	}
}
