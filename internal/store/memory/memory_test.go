package memory_test

import (
	"testing"

	"github.com/rakunlabs/flowbot/internal/store/memory"
	"github.com/rakunlabs/flowbot/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	s := memory.New()
	defer s.Close()
	storetest.Run(t, s)
}
