package watchlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	s := NewStatic([]string{" abcd", "EFGH", "", "abcd ", "ijkl"})

	got, err := s.FetchPriorityTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ABCD", "EFGH", "IJKL"}, got)

	got[0] = "MUTATED"
	again, _ := s.FetchPriorityTickers(context.Background())
	assert.Equal(t, "ABCD", again[0])
}
