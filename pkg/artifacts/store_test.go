package artifacts

import (
	"context"
	"strings"
	"testing"
)

func TestFileStore_PutGet(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	data := []byte("<svg>receipt ord-1</svg>")
	ref, err := store.Put(ctx, data, "image/svg+xml")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ref.Hash, "sha256:") {
		t.Errorf("hash missing prefix: %s", ref.Hash)
	}
	if ref.Locator != "cas://local/"+ref.Hash {
		t.Errorf("unexpected locator: %s", ref.Locator)
	}

	got, err := store.Get(ctx, ref.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("round-trip mismatch: %q", got)
	}
}

func TestFileStore_PutIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	data := []byte("same bytes")
	ref1, err := store.Put(ctx, data, "")
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	ref2, err := store.Put(ctx, data, "")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("identical bytes produced different refs: %v vs %v", ref1, ref2)
	}
}

func TestFileStore_DistinctContent(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	ref1, _ := store.Put(ctx, []byte("a"), "")
	ref2, _ := store.Put(ctx, []byte("b"), "")
	if ref1.Hash == ref2.Hash {
		t.Error("distinct content must yield distinct hashes")
	}
}

func TestFileStore_Exists(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("present"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Exists(ctx, ref.Hash)
	if err != nil || !ok {
		t.Errorf("Exists(stored) = %v, %v; want true, nil", ok, err)
	}

	ok, err = store.Exists(ctx, "sha256:"+strings.Repeat("0", 64))
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false, nil", ok, err)
	}
}

func TestFileStore_BadHash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for _, hash := range []string{"", "md5:abc", "sha256:not-hex!"} {
		if _, err := store.Get(ctx, hash); err == nil {
			t.Errorf("Get(%q) should fail", hash)
		}
		if _, err := store.Exists(ctx, hash); err == nil {
			t.Errorf("Exists(%q) should fail", hash)
		}
	}
}

func TestFileStore_GetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Get(context.Background(), "sha256:"+strings.Repeat("a", 64))
	if err == nil {
		t.Error("Get of a missing artifact should fail")
	}
}
