package sql

import (
	"fmt"
	"testing"

	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/storagetest"
)

func TestConformance(t *testing.T) {
	i := 0
	storagetest.RunConformance(t, func(t *testing.T) storage.RawStore {
		i++
		dsn := fmt.Sprintf("file:grove%d?mode=memory&cache=shared", i)
		s, err := Open(dsn)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
