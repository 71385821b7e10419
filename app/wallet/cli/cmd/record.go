package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var recordFile string

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Commit the digest of a file to the ledger",
	Run:   recordRun,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordFile, "file", "f", "", "File to commit the digest of.")
}

func recordRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	content, err := os.ReadFile(recordFile)
	if err != nil {
		log.Fatal(err)
	}

	digest := signature.HashBytes(content)

	tx, err := database.NewDataTx(uint64(time.Now().UnixNano()), signature.PublicKeyString(privateKey.PublicKey), digest)
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(privateKey, nil)
	if err != nil {
		log.Fatal(err)
	}

	var resp submitted
	if err := post(fmt.Sprintf("%s/v1/tx/submit", url), signedTx, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Digest:", digest)
	fmt.Println("Tx:    ", resp.TxID)
}
