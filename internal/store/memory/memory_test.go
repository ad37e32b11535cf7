package memory_test

import (
	"testing"

	"github.com/zhouzirui/z-tone/backend/internal/store"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
	"github.com/zhouzirui/z-tone/backend/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestCompositeStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return &store.Composite{Vectors: memory.New(), Docs: memory.New()}
	})
}
