package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	nonce uint64
	to    string
	value uint64
)

type output struct {
	TxID   string `json:"tx_id"`
	Index  uint32 `json:"index"`
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type submitted struct {
	Status string `json:"status"`
	TxID   string `json:"tx_id"`
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		if err := sendWithDetails(privateKey); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction, defaults to the current time.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send the value to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) error {
	toID, err := database.ToAccountID(to)
	if err != nil {
		return err
	}

	if nonce == 0 {
		nonce = uint64(time.Now().UnixNano())
	}

	tx, err := database.NewTransferTx(nonce, signature.PublicKeyString(privateKey.PublicKey), toID, value)
	if err != nil {
		return err
	}

	// Pick enough of the spendable outputs to cover the value. The node
	// returns the change to this account.
	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)

	var outs []output
	if err := get(fmt.Sprintf("%s/v1/utxo/%s", url, accountID), &outs); err != nil {
		return err
	}

	inputs, err := selectInputs(outs, value)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(privateKey, inputs)
	if err != nil {
		return err
	}

	var resp submitted
	if err := post(fmt.Sprintf("%s/v1/tx/submit", url), signedTx, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Status)
	fmt.Println("Tx:", resp.TxID)

	return nil
}

// selectInputs takes outputs in the order the node returned them until the
// value is covered.
func selectInputs(outs []output, value uint64) ([]database.OutputRef, error) {
	var total uint64
	var inputs []database.OutputRef

	for _, out := range outs {
		if total >= value {
			break
		}

		inputs = append(inputs, database.OutputRef{TxID: out.TxID, Index: out.Index})
		total += out.Amount
	}

	if total < value {
		return nil, fmt.Errorf("%w: spendable %d, value %d", database.ErrInsufficientFunds, total, value)
	}

	return inputs, nil
}
