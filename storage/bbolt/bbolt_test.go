package bbolt

import (
	"path/filepath"
	"testing"

	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.RunConformance(t, func(t *testing.T) storage.RawStore {
		dir := t.TempDir()
		s, err := Open(filepath.Join(dir, "grove.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
