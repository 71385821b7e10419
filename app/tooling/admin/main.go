// This program performs administrative tasks against the blocks a node has
// stored, without the node running.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/ledger/app/tooling/admin/commands"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

type config struct {
	conf.Version
	Args        conf.Args
	GenesisPath string `conf:"default:zblock/genesis.json"`
	Storage     string `conf:"default:disk"`
	DBPath      string `conf:"default:zblock/miner1/"`
}

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		if !errors.Is(err, commands.ErrHelp) {
			log.Errorw("startup", "ERROR", err)
		}
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := config{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	var strg database.Storage
	switch cfg.Storage {
	case "disk":
		strg, err = disk.New(cfg.DBPath)
	case "leveldb":
		strg, err = leveldb.New(cfg.DBPath)
	default:
		err = fmt.Errorf("unknown storage %q, expecting disk or leveldb", cfg.Storage)
	}
	if err != nil {
		return err
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	// Every stored block is validated again while the database loads.
	db, err := database.New(gen, database.DefaultRules(gen), strg, ev)
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}
	defer db.Close()

	return processCommands(cfg.Args, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, db *database.Database) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(os.Stdout, db, args.Num(1)); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}

	case "trans":
		if err := commands.Transactions(os.Stdout, db, args.Num(1)); err != nil {
			return fmt.Errorf("getting transactions: %w", err)
		}

	case "audit":
		if err := commands.Audit(os.Stdout, db); err != nil {
			return fmt.Errorf("auditing chain: %w", err)
		}

	default:
		fmt.Println("bals [account]: show the confirmed balances")
		fmt.Println("trans [account]: show the confirmed transactions")
		fmt.Println("audit: replay the chain and compare the ledger")
		return commands.ErrHelp
	}

	return nil
}
