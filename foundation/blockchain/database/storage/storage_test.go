package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/database/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Storage(t *testing.T) {
	type table struct {
		name    string
		storage func(t *testing.T) database.Storage
	}

	tt := []table{
		{
			name: "memory",
			storage: func(t *testing.T) database.Storage {
				s, err := memory.New()
				if err != nil {
					t.Fatalf("Should be able to open memory storage: %v", err)
				}
				return s
			},
		},
		{
			name: "disk",
			storage: func(t *testing.T) database.Storage {
				s, err := disk.New(t.TempDir())
				if err != nil {
					t.Fatalf("Should be able to open disk storage: %v", err)
				}
				return s
			},
		},
		{
			name: "leveldb",
			storage: func(t *testing.T) database.Storage {
				s, err := leveldb.New(filepath.Join(t.TempDir(), "blocks"))
				if err != nil {
					t.Fatalf("Should be able to open leveldb storage: %v", err)
				}
				return s
			},
		},
	}

	t.Log("Given the need to store and read back blocks.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen using %s storage.", testID, tst.name)
				{
					s := tst.storage(t)
					defer s.Close()

					for i := uint64(1); i <= 3; i++ {
						bd := database.BlockData{Hash: "0x01", Header: database.BlockHeader{Number: i}}
						if err := s.Write(bd); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to write block %d: %v", failed, testID, i, err)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould be able to write blocks.", success, testID)

					bd, err := s.GetBlock(2)
					if err != nil || bd.Header.Number != 2 {
						t.Fatalf("\t%s\tTest %d:\tShould be able to read block 2: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to read block 2.", success, testID)

					var got []uint64
					iter := s.ForEach()
					for bd, err := iter.Next(); !iter.Done(); bd, err = iter.Next() {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to iterate: %v", failed, testID, err)
						}
						got = append(got, bd.Header.Number)
					}

					if len(got) != 3 || got[0] != 1 || got[2] != 3 {
						t.Fatalf("\t%s\tTest %d:\tShould iterate the blocks in order, got %v.", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould iterate the blocks in order.", success, testID)

					if err := s.Reset(); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to reset: %v", failed, testID, err)
					}

					iter = s.ForEach()
					if _, err := iter.Next(); err == nil || !iter.Done() {
						t.Fatalf("\t%s\tTest %d:\tShould have no blocks after a reset.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould have no blocks after a reset.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}
