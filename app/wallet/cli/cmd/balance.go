package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type balance struct {
	Account     string `json:"account"`
	Name        string `json:"name"`
	Balance     uint64 `json:"balance"`
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	var bal balance
	if err := get(fmt.Sprintf("%s/v1/balance/%s", url, accountID), &bal); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Confirmed:  ", bal.Balance)
	fmt.Println("Latest:     ", bal.LatestBlock)
	fmt.Println("Uncommitted:", bal.Uncommitted)
}
