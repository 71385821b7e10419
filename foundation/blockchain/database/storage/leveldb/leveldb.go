// Package leveldb implements the ability to read and write blocks to a
// LevelDB key value store.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// blockPrefix namespaces the block keys. The block number follows in big
// endian so keys sort in chain order.
var blockPrefix = []byte("blk:")

// LevelDB represents the serialization implementation for reading and storing
// blocks in a LevelDB database. This implements the database.Storage
// interface.
type LevelDB struct {
	db *leveldb.DB
}

// New opens or creates the LevelDB database at the specified path.
func New(dbPath string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &LevelDB{db: db}, nil
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write stores the block under its number.
func (l *LevelDB) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}

	if err := l.db.Put(key(blockData.Header.Number), data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}

	return nil
}

// GetBlock returns the block stored under the number.
func (l *LevelDB) GetBlock(num uint64) (database.BlockData, error) {
	data, err := l.db.Get(key(num), nil)
	if err != nil {
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, fmt.Errorf("failed to unmarshal block: %w", err)
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (l *LevelDB) ForEach() database.Iterator {
	return &levelIterator{storage: l}
}

// Reset deletes every stored block.
func (l *LevelDB) Reset() error {
	iter := l.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	var batch leveldb.Batch
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterator error: %w", err)
	}

	return l.db.Write(&batch, &opt.WriteOptions{Sync: true})
}

// key forms the key for the specified block number.
func key(num uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], num)

	return k
}

// =============================================================================

// levelIterator walks the blocks by number until one is missing. This
// implements the database Iterator interface.
type levelIterator struct {
	storage *LevelDB
	current uint64
	eoc     bool
}

// Next retrieves the next block from the database.
func (li *levelIterator) Next() (database.BlockData, error) {
	if li.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	li.current++
	blockData, err := li.storage.GetBlock(li.current)
	if errors.Is(err, leveldb.ErrNotFound) {
		li.eoc = true
	}

	return blockData, err
}

// Done returns the end of chain value.
func (li *levelIterator) Done() bool {
	return li.eoc
}
