package ldb

import (
	"fmt"
	"testing"

	"github.com/sashabeton/bitcoinvault/infrastructure/db/database"
)

func prepareDatabaseForTest(t *testing.T, testName string) (ldb *LevelDB, teardownFunc func()) {
	ldb, err := NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("%s: NewLevelDB unexpectedly failed: %s", testName, err)
	}
	teardownFunc = func() {
		err = ldb.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
		}
	}
	return ldb, teardownFunc
}

func TestLevelDBSanity(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestLevelDBSanity")
	defer teardownFunc()

	key := database.MakeBucket([]byte("bucket")).Key([]byte("key"))
	putData := []byte("Hello world!")
	err := ldb.Put(key, putData)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Put unexpectedly failed: %s", err)
	}

	getData, err := ldb.Get(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Get unexpectedly failed: %s", err)
	}
	if string(getData) != string(putData) {
		t.Fatalf("TestLevelDBSanity: Get returned wrong data. Want: %s, got: %s",
			putData, getData)
	}

	err = ldb.Delete(key)
	if err != nil {
		t.Fatalf("TestLevelDBSanity: Delete unexpectedly failed: %s", err)
	}
	_, err = ldb.Get(key)
	if !database.IsNotFoundError(err) {
		t.Fatalf("TestLevelDBSanity: Get after Delete returned unexpected error: %v", err)
	}
}

func TestTransactionCommitAndRollback(t *testing.T) {
	ldb, err := NewInMemoryLevelDB()
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: NewInMemoryLevelDB unexpectedly failed: %s", err)
	}
	defer ldb.Close()

	bucket := database.MakeBucket([]byte("b"))

	dbTx, err := ldb.Begin()
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Begin unexpectedly failed: %s", err)
	}
	err = dbTx.Put(bucket.Key([]byte("committed")), []byte{1})
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Put unexpectedly failed: %s", err)
	}
	exists, err := ldb.Has(bucket.Key([]byte("committed")))
	if err != nil || exists {
		t.Fatalf("TestTransactionCommitAndRollback: write is visible before Commit")
	}
	err = dbTx.Commit()
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Commit unexpectedly failed: %s", err)
	}
	if err := dbTx.Commit(); err == nil {
		t.Fatalf("TestTransactionCommitAndRollback: second Commit unexpectedly succeeded")
	}

	dbTx, err = ldb.Begin()
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Begin unexpectedly failed: %s", err)
	}
	err = dbTx.Put(bucket.Key([]byte("rolledback")), []byte{2})
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Put unexpectedly failed: %s", err)
	}
	err = dbTx.Rollback()
	if err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: Rollback unexpectedly failed: %s", err)
	}
	if err := dbTx.RollbackUnlessClosed(); err != nil {
		t.Fatalf("TestTransactionCommitAndRollback: RollbackUnlessClosed unexpectedly failed: %s", err)
	}

	exists, err = ldb.Has(bucket.Key([]byte("committed")))
	if err != nil || !exists {
		t.Fatalf("TestTransactionCommitAndRollback: committed key is missing")
	}
	exists, err = ldb.Has(bucket.Key([]byte("rolledback")))
	if err != nil || exists {
		t.Fatalf("TestTransactionCommitAndRollback: rolled back key exists")
	}
}

func TestCursorIteratesOnlyItsBucket(t *testing.T) {
	ldb, teardownFunc := prepareDatabaseForTest(t, "TestCursorIteratesOnlyItsBucket")
	defer teardownFunc()

	bucket := database.MakeBucket([]byte("bucket"))
	for i := 0; i < 5; i++ {
		err := ldb.Put(bucket.Key([]byte(fmt.Sprintf("key%d", i))), []byte(fmt.Sprintf("value%d", i)))
		if err != nil {
			t.Fatalf("TestCursorIteratesOnlyItsBucket: Put unexpectedly failed: %s", err)
		}
	}
	err := ldb.Put(database.MakeBucket([]byte("bucket2")).Key([]byte("key0")), []byte("other"))
	if err != nil {
		t.Fatalf("TestCursorIteratesOnlyItsBucket: Put unexpectedly failed: %s", err)
	}

	cursor, err := ldb.Cursor(bucket)
	if err != nil {
		t.Fatalf("TestCursorIteratesOnlyItsBucket: Cursor unexpectedly failed: %s", err)
	}
	defer cursor.Close()

	count := 0
	for ok := cursor.First(); ok; ok = cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			t.Fatalf("TestCursorIteratesOnlyItsBucket: Key unexpectedly failed: %s", err)
		}
		value, err := cursor.Value()
		if err != nil {
			t.Fatalf("TestCursorIteratesOnlyItsBucket: Value unexpectedly failed: %s", err)
		}
		expectedKey := fmt.Sprintf("key%d", count)
		if string(key.Suffix()) != expectedKey || string(value) != fmt.Sprintf("value%d", count) {
			t.Fatalf("TestCursorIteratesOnlyItsBucket: unexpected pair %s=%s", key.Suffix(), value)
		}
		count++
	}
	if count != 5 {
		t.Fatalf("TestCursorIteratesOnlyItsBucket: expected 5 entries, got %d", count)
	}
}
