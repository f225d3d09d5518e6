// Package staging collects the changes a block makes to the stores of the
// node so they are written in one database transaction.
package staging

import (
	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

// Shard holds the staged changes of one store.
type Shard interface {
	Commit(dbTx database.Transaction) error
}

// CommitListener is implemented by shards that update in-memory state once
// the database transaction they were written into has committed.
type CommitListener interface {
	OnCommitted()
}

// Area is a set of shards, one per store, that commit together.
type Area struct {
	shards      map[string]Shard
	shardOrder  []string
	isCommitted bool
}

// NewArea returns an empty staging area.
func NewArea() *Area {
	return &Area{shards: make(map[string]Shard)}
}

// GetOrCreateShard returns the shard called shardName, creating it with
// createFunc on first use.
func (sa *Area) GetOrCreateShard(shardName string, createFunc func() Shard) Shard {
	if _, ok := sa.shards[shardName]; !ok {
		sa.shards[shardName] = createFunc()
		sa.shardOrder = append(sa.shardOrder, shardName)
	}
	return sa.shards[shardName]
}

// Commit writes every shard into dbTx in the order the shards were created.
func (sa *Area) Commit(dbTx database.Transaction) error {
	if sa.isCommitted {
		panic("Tried to commit an already committed staging area")
	}
	for _, shardName := range sa.shardOrder {
		err := sa.shards[shardName].Commit(dbTx)
		if err != nil {
			return err
		}
	}
	sa.isCommitted = true
	return nil
}

// CommitAllChanges commits the staging area into a new transaction of db.
func CommitAllChanges(db database.Database, stagingArea *Area) error {
	dbTx, err := db.Begin()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = stagingArea.Commit(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	for _, shardName := range stagingArea.shardOrder {
		if listener, ok := stagingArea.shards[shardName].(CommitListener); ok {
			listener.OnCommitted()
		}
	}
	return nil
}
