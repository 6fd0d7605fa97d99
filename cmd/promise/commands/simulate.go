// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/33cn/puzzlepromise/common/log"
	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/metrics"
	"github.com/33cn/puzzlepromise/promise"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/33cn/puzzlepromise/store"
	"github.com/33cn/puzzlepromise/types"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/cobra"
)

var clog = log.New("module", "cmd.promise")

// SimulateCmd run a full honest exchange locally
func SimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "run a complete requester/signer exchange in process",
		Run:   simulate,
	}
	cmd.Flags().IntP("real", "n", 0, "real candidates, config value when 0")
	cmd.Flags().IntP("decoy", "m", -1, "decoy candidates, config value when negative")
	cmd.Flags().StringP("amount", "a", "0.01", "escrow amount in BTC")
	cmd.Flags().StringP("key", "k", "", "keygen output used as the signer keys, fresh keys when empty")
	return cmd
}

// SimulateOptions inputs of a simulation
type SimulateOptions struct {
	RealCount  int
	DecoyCount int
	Amount     btcutil.Amount
	// signer keys, generated when nil
	PuzzleKey *puzzle.RsaKey
	EscrowKey *btcec.PrivateKey
}

// SimulateResult outputs of a simulation
type SimulateResult struct {
	RequesterID   string
	SignerID      string
	EscrowAddress string
	Transactions  []*wire.MsgTx
	Refund        *wire.MsgTx
}

func simulate(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	realCount, _ := cmd.Flags().GetInt("real")
	decoyCount, _ := cmd.Flags().GetInt("decoy")
	amountStr, _ := cmd.Flags().GetString("amount")
	keyFile, _ := cmd.Flags().GetString("key")
	amount, err := types.ParseBtcAmount(amountStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	opts := &SimulateOptions{RealCount: realCount, DecoyCount: decoyCount, Amount: amount}
	if keyFile != "" {
		if opts.PuzzleKey, opts.EscrowKey, err = loadKeyFile(keyFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
	}
	log.SetFileLog(cfg.Log)
	metrics.StartMetrics(cfg.Metrics)

	s, err := store.New(cfg.Store)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	defer s.Close()

	res, err := runSimulation(cfg, opts, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	printSimulation(os.Stdout, res)
}

func printSimulation(out io.Writer, res *SimulateResult) {
	fmt.Fprintf(out, "requester session: %s\n", res.RequesterID)
	fmt.Fprintf(out, "signer session:    %s\n", res.SignerID)
	fmt.Fprintf(out, "escrow address:    %s\n", res.EscrowAddress)
	for i, tx := range res.Transactions {
		fmt.Fprintf(out, "cashout %d: txid %s value %d\n%s\n", i, tx.TxHash(), tx.TxOut[0].Value, txHex(tx))
	}
	if res.Refund != nil {
		fmt.Fprintf(out, "signer refund: txid %s lockTime %d\n%s\n", res.Refund.TxHash(), res.Refund.LockTime, txHex(res.Refund))
	}
}

func txHex(tx *wire.MsgTx) string {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err.Error()
	}
	return hex.EncodeToString(buf.Bytes())
}

func payToNewKey(params *chaincfg.Params) ([]byte, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// simulation one requester and one signer talking through plain function calls
type simulation struct {
	store     *store.SessionStore
	requester *promise.RequesterSession
	signer    *promise.SignerSession
	rid, sid  string
}

func (sim *simulation) persist() error {
	if err := sim.store.SaveRequester(sim.rid, sim.requester); err != nil {
		return err
	}
	return sim.store.SaveSigner(sim.sid, sim.signer)
}

// reload resumes both sessions from the store, as a restarted process would
func (sim *simulation) reload() error {
	var err error
	if sim.requester, err = sim.store.LoadRequester(sim.rid); err != nil {
		return err
	}
	sim.signer, err = sim.store.LoadSigner(sim.sid)
	return err
}

func (sim *simulation) checkpoint() error {
	if err := sim.persist(); err != nil {
		return err
	}
	return sim.reload()
}

func runSimulation(cfg *types.Config, opts *SimulateOptions, s *store.SessionStore) (*SimulateResult, error) {
	netParams, err := cfg.NetParams()
	if err != nil {
		return nil, err
	}
	feeRate, err := cfg.FeeRate()
	if err != nil {
		return nil, err
	}
	promiseCfg := *cfg.Promise
	if opts.RealCount > 0 {
		promiseCfg.RealCount = opts.RealCount
	}
	if opts.DecoyCount >= 0 {
		promiseCfg.DecoyCount = opts.DecoyCount
	}

	puzzleKey := opts.PuzzleKey
	if puzzleKey == nil {
		if puzzleKey, err = puzzle.GenerateKey(crypto.CReader(), promiseCfg.KeyBits); err != nil {
			return nil, err
		}
	}
	params, err := promise.NewParametersFromConfig(&promiseCfg, puzzleKey.PubKey())
	if err != nil {
		return nil, err
	}

	signerKey := opts.EscrowKey
	if signerKey == nil {
		if signerKey, err = btcec.NewPrivateKey(); err != nil {
			return nil, err
		}
	}
	ownerKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	script, err := ledger.NewEscrowScript(&ledger.EscrowParams{
		Initiator: signerKey.PubKey(),
		Receiver:  ownerKey.PubKey(),
		LockTime:  promiseCfg.LockTime,
	})
	if err != nil {
		return nil, err
	}
	funding, err := crypto.RandHash32(crypto.CReader())
	if err != nil {
		return nil, err
	}
	coin := &ledger.EscrowCoin{
		OutPoint:     wire.OutPoint{Hash: chainhash.Hash(funding), Index: 0},
		Amount:       opts.Amount,
		RedeemScript: script,
	}
	escrowAddr, err := coin.Address(netParams)
	if err != nil {
		return nil, err
	}
	destination, err := payToNewKey(netParams)
	if err != nil {
		return nil, err
	}

	sim := &simulation{store: s, rid: store.NewID(), sid: store.NewID()}
	if sim.requester, err = promise.NewRequesterSession(params); err != nil {
		return nil, err
	}
	if sim.signer, err = promise.NewSignerSession(params, signerKey); err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	clog.Info("runSimulation", "requester", sim.rid, "signer", sim.sid, "escrow", escrowAddr.EncodeAddress(),
		"real", params.RealCount, "decoy", params.DecoyCount)

	if err := sim.requester.ConfigureEscrow(coin, ownerKey); err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	req, err := sim.requester.CreateSignatureRequest(destination, feeRate)
	if err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	commitments, err := sim.signer.Commit(req)
	if err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	rev, err := sim.requester.Reveal(commitments)
	if err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	proof, err := sim.signer.Prove(rev)
	if err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}
	blinded, err := sim.requester.CheckCommitmentsProof(proof)
	if err != nil {
		return nil, err
	}
	if err := sim.checkpoint(); err != nil {
		return nil, err
	}

	var oracle promise.Oracle = promise.NewLocalOracle(puzzleKey)
	solution, err := oracle.SolveBlinded(blinded)
	if err != nil {
		return nil, err
	}
	it, err := sim.requester.GetSignedTransactions(solution)
	if err != nil {
		return nil, err
	}
	res := &SimulateResult{RequesterID: sim.rid, SignerID: sim.sid, EscrowAddress: escrowAddr.EncodeAddress()}
	for it.Next() {
		res.Transactions = append(res.Transactions, it.Tx())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	signerDest, err := payToNewKey(netParams)
	if err != nil {
		return nil, err
	}
	if res.Refund, err = ledger.BuildRefund(coin, signerDest, feeRate, signerKey); err != nil {
		return nil, err
	}
	return res, nil
}
