package memory_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/wms-platform/lot-ledger/internal/infrastructure/memory"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/storetest"
)

type MemoryStoreTestSuite struct {
	storetest.StoreSuite
}

func (s *MemoryStoreTestSuite) SetupSuite() {
	s.Store = memory.NewStore()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}
