package bolt

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

const testBucket = "test-bucket"

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// File should exist, parent created on demand
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}
}

func TestOpenUnderFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(blocker, "test.db")); err == nil {
		t.Fatal("opening db below a regular file should fail")
	}
}

func TestPutAndGet(t *testing.T) {
	s := tempStore(t)

	if err := s.Put(testBucket, map[string][]byte{"key1": []byte("val1"), "key2": []byte("val2")}); err != nil {
		t.Fatal(err)
	}

	val, ok, err := s.Get(testBucket, "key1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(val) != "val1" {
		t.Fatalf("expected val1, got %q ok=%v", val, ok)
	}
}

func TestGetNonexistentBucket(t *testing.T) {
	s := tempStore(t)
	val, ok, err := s.Get("no-bucket", "key")
	if err != nil {
		t.Fatal(err)
	}
	if ok || val != nil {
		t.Fatalf("expected miss for nonexistent bucket, got %q", val)
	}
}

func TestGetNonexistentKey(t *testing.T) {
	s := tempStore(t)
	if err := s.Put(testBucket, map[string][]byte{"other": []byte("val")}); err != nil {
		t.Fatal(err)
	}
	_, ok, err := s.Get(testBucket, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected miss for missing key")
	}
}

func TestPutOverwrite(t *testing.T) {
	s := tempStore(t)
	if err := s.Put(testBucket, map[string][]byte{"k": []byte("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(testBucket, map[string][]byte{"k": []byte("v2")}); err != nil {
		t.Fatal(err)
	}
	val, _, err := s.Get(testBucket, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "v2" {
		t.Fatalf("expected v2 after overwrite, got %q", val)
	}
}

func TestDelete(t *testing.T) {
	s := tempStore(t)
	if err := s.Put(testBucket, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(testBucket, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(testBucket, "k"); ok {
		t.Fatal("expected miss after delete")
	}
	// Should not error when bucket doesn't exist
	if err := s.Delete("no-bucket", "key"); err != nil {
		t.Fatal(err)
	}
}

func TestForEachInKeyOrder(t *testing.T) {
	s := tempStore(t)
	if err := s.Put(testBucket, map[string][]byte{"c": []byte("3"), "a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatal(err)
	}

	var keys []string
	err := s.ForEach(testBucket, func(k string, v []byte) error {
		keys = append(keys, k+"="+string(v))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 || keys[0] != "a=1" || keys[2] != "c=3" {
		t.Fatalf("unexpected iteration %v", keys)
	}
}

func TestForEachNonexistentBucket(t *testing.T) {
	s := tempStore(t)
	count := 0
	err := s.ForEach("no-bucket", func(string, []byte) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("iterating empty/nonexistent bucket should yield 0 entries")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := tempStore(t)
	if err := s.Put(testBucket, map[string][]byte{"k": []byte("original")}); err != nil {
		t.Fatal(err)
	}

	val, _, _ := s.Get(testBucket, "k")
	val[0] = 'X'

	again, _, _ := s.Get(testBucket, "k")
	if string(again) != "original" {
		t.Fatal("mutating a returned value should not affect the store")
	}
}

func TestMultipleBuckets(t *testing.T) {
	s := tempStore(t)
	if err := s.Put("bucket1", map[string][]byte{"k": []byte("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("bucket2", map[string][]byte{"k": []byte("v2")}); err != nil {
		t.Fatal(err)
	}

	v1, _, _ := s.Get("bucket1", "k")
	v2, _, _ := s.Get("bucket2", "k")
	if string(v1) != "v1" || string(v2) != "v2" {
		t.Fatal("buckets should be isolated")
	}
}
