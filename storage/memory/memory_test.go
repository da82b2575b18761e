package memory

import (
	"testing"

	"github.com/dashpay/grovedb-sub006/storage"
	"github.com/dashpay/grovedb-sub006/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.RunConformance(t, func(t *testing.T) storage.RawStore {
		return New()
	})
}
