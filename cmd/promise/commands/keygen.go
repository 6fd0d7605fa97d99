// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// KeygenCmd generate a puzzle key and an escrow key
func KeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a RSA puzzle key and a secp256k1 escrow key",
		Run:   keygen,
	}
	cmd.Flags().IntP("bits", "b", 2048, "RSA modulus bits")
	return cmd
}

// KeygenResult keygen output, the signer side keys of simulate --key
type KeygenResult struct {
	PuzzleKey     string `json:"puzzleKey"`
	PuzzlePubKey  string `json:"puzzlePubKey"`
	EscrowPrivKey string `json:"escrowPrivKey"`
	EscrowPubKey  string `json:"escrowPubKey"`
	PuzzleModBits int    `json:"puzzleModBits"`
}

// Keys decodes the puzzle key and the escrow key
func (r *KeygenResult) Keys() (*puzzle.RsaKey, *btcec.PrivateKey, error) {
	b, err := hex.DecodeString(r.PuzzleKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "puzzleKey")
	}
	puzzleKey, err := puzzle.RsaKeyFromBytes(b)
	if err != nil {
		return nil, nil, errors.Wrap(err, "puzzleKey")
	}
	b, err = hex.DecodeString(r.EscrowPrivKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "escrowPrivKey")
	}
	escrowKey, err := ledger.PrivKeyFromBytes(b)
	if err != nil {
		return nil, nil, errors.Wrap(err, "escrowPrivKey")
	}
	return puzzleKey, escrowKey, nil
}

// loadKeyFile reads keygen output from path
func loadKeyFile(path string) (*puzzle.RsaKey, *btcec.PrivateKey, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var res KeygenResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, nil, errors.Wrapf(err, "decode key file %s", path)
	}
	return res.Keys()
}

func keygen(cmd *cobra.Command, args []string) {
	bits, _ := cmd.Flags().GetInt("bits")
	if err := runKeygen(bits, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func runKeygen(bits int, out io.Writer) error {
	key, err := puzzle.GenerateKey(crypto.CReader(), bits)
	if err != nil {
		return err
	}
	escrowKey, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}
	res := &KeygenResult{
		PuzzleKey:     hex.EncodeToString(key.Bytes()),
		PuzzlePubKey:  hex.EncodeToString(key.PubKey().Bytes()),
		EscrowPrivKey: hex.EncodeToString(escrowKey.Serialize()),
		EscrowPubKey:  hex.EncodeToString(escrowKey.PubKey().SerializeCompressed()),
		PuzzleModBits: key.PubKey().Modulus().BitLen(),
	}
	data, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}
