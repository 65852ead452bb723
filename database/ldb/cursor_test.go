package ldb

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/tenebrium/tenebriumd/database"
)

func prepareCursorForTest(t *testing.T, entries int) (database.Cursor, *database.Bucket) {
	t.Helper()
	ldb := prepareDatabaseForTest(t)

	bucket := database.MakeBucket([]byte("bucket"))
	for i := 0; i < entries; i++ {
		key := bucket.Key([]byte(fmt.Sprintf("key%d", i)))
		value := []byte(fmt.Sprintf("value%d", i))
		err := ldb.Put(key, value)
		if err != nil {
			t.Fatalf("Put unexpectedly failed: %s", err)
		}
	}

	// Write a key outside the bucket to make sure the cursor never
	// strays past its prefix.
	otherKey := database.MakeBucket([]byte("other")).Key([]byte("key"))
	err := ldb.Put(otherKey, []byte("value"))
	if err != nil {
		t.Fatalf("Put unexpectedly failed: %s", err)
	}

	cursor, err := ldb.Cursor(bucket)
	if err != nil {
		t.Fatalf("Cursor unexpectedly failed: %s", err)
	}
	t.Cleanup(func() {
		if err := cursor.Close(); err != nil &&
			!strings.Contains(err.Error(), "closed cursor") {
			t.Fatalf("Close unexpectedly failed: %s", err)
		}
	})
	return cursor, bucket
}

func validateCurrentCursorKeyAndValue(t *testing.T, cursor database.Cursor,
	bucket *database.Bucket, expectedIndex int) {

	t.Helper()
	expectedKey := bucket.Key([]byte(fmt.Sprintf("key%d", expectedIndex)))
	expectedValue := []byte(fmt.Sprintf("value%d", expectedIndex))

	key, err := cursor.Key()
	if err != nil {
		t.Fatalf("Key unexpectedly failed: %s", err)
	}
	if !bytes.Equal(key.Bytes(), expectedKey.Bytes()) {
		t.Fatalf("Key returned wrong key. Want: %s, got: %s",
			expectedKey, key)
	}
	value, err := cursor.Value()
	if err != nil {
		t.Fatalf("Value unexpectedly failed: %s", err)
	}
	if !bytes.Equal(value, expectedValue) {
		t.Fatalf("Value returned wrong value. Want: %s, got: %s",
			expectedValue, value)
	}
}

// TestCursorSanity iterates over a prepopulated bucket and verifies that
// every key/value pair is visited exactly once, in order.
func TestCursorSanity(t *testing.T) {
	const entries = 10
	cursor, bucket := prepareCursorForTest(t, entries)

	visited := 0
	for ok := cursor.First(); ok; ok = cursor.Next() {
		validateCurrentCursorKeyAndValue(t, cursor, bucket, visited)
		visited++
	}
	if visited != entries {
		t.Fatalf("cursor visited %d entries, want %d", visited, entries)
	}
}

func TestCursorSeek(t *testing.T) {
	cursor, bucket := prepareCursorForTest(t, 10)

	// Seek to an existing key lands exactly on it and iteration
	// continues from there.
	err := cursor.Seek(bucket.Key([]byte("key5")))
	if err != nil {
		t.Fatalf("Seek unexpectedly failed: %s", err)
	}
	validateCurrentCursorKeyAndValue(t, cursor, bucket, 5)
	if !cursor.Next() {
		t.Fatal("Next unexpectedly returned false after Seek")
	}
	validateCurrentCursorKeyAndValue(t, cursor, bucket, 6)

	// Seek requires an exact match. "key55" sorts between existing keys
	// but is not present itself.
	err = cursor.Seek(bucket.Key([]byte("key55")))
	if !database.IsNotFoundError(err) {
		t.Fatalf("Seek to a missing key returned wrong error: %v", err)
	}
}

func TestCursorCloseErrors(t *testing.T) {
	cursor, _ := prepareCursorForTest(t, 10)

	err := cursor.Close()
	if err != nil {
		t.Fatalf("Close unexpectedly failed: %s", err)
	}

	err = cursor.Close()
	if err == nil {
		t.Fatal("closing an already closed cursor unexpectedly succeeded")
	}
	err = cursor.Seek(database.MakeBucket([]byte("bucket")).Key([]byte("key0")))
	if err == nil {
		t.Fatal("seeking a closed cursor unexpectedly succeeded")
	}
}

func TestCursorCloseFirstAndNextPanic(t *testing.T) {
	cursor, _ := prepareCursorForTest(t, 10)
	err := cursor.Close()
	if err != nil {
		t.Fatalf("Close unexpectedly failed: %s", err)
	}

	expectPanicContaining(t, "closed cursor", func() { cursor.First() })
	expectPanicContaining(t, "closed cursor", func() { cursor.Next() })
	expectPanicContaining(t, "closed cursor", func() { cursor.Key() })
	expectPanicContaining(t, "closed cursor", func() { cursor.Value() })
}

func expectPanicContaining(t *testing.T, want string, f func()) {
	t.Helper()
	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("expected a panic but none occurred")
		}
		message, ok := recovered.(string)
		if !ok || !strings.Contains(message, want) {
			t.Fatalf("panic message %v does not contain %q", recovered, want)
		}
	}()
	f()
}
