package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeRejectsOutOfRangeNode(t *testing.T) {
	_, err := NewSnowflake(-1)
	require.Error(t, err)
	_, err = NewSnowflake(maxNodeID + 1)
	require.Error(t, err)
}

func TestGenerateIsStrictlyIncreasingUnderConcurrency(t *testing.T) {
	s, err := NewSnowflake(3)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := s.Generate()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers*perWorker)
}

func TestGenerateSurvivesClockRollback(t *testing.T) {
	s, err := NewSnowflake(1)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	first := s.Generate()

	s.now = func() time.Time { return base.Add(-time.Second) }
	second := s.Generate()
	require.Greater(t, second, first)
}

func TestGeneratedNumbersHavePrefixes(t *testing.T) {
	require.True(t, strings.HasPrefix(GenerateTransactionNo(), "TXN"))
	require.True(t, strings.HasPrefix(GenerateSettlementNo(42), "STL42_"))
}
