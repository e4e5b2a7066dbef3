package consensus

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedJudge answers from a list and records the pairs it saw.
type scriptedJudge struct {
	replies []string
	errs    []error
	pairs   [][2]string
}

func (j *scriptedJudge) Compare(_ context.Context, first, second string) (string, error) {
	i := len(j.pairs)
	j.pairs = append(j.pairs, [2]string{first, second})
	var err error
	if i < len(j.errs) {
		err = j.errs[i]
	}
	if i < len(j.replies) {
		return j.replies[i], err
	}
	return "", err
}

func TestReducer_Reduce(t *testing.T) {
	boom := errors.New("judge unavailable")

	tests := []struct {
		name       string
		candidates []string
		replies    []string
		errs       []error
		want       string
		wantPairs  [][2]string
	}{
		{
			name:       "single candidate skips the judge",
			candidates: []string{"only"},
			want:       "only",
		},
		{
			name:       "challenger wins on second",
			candidates: []string{"a", "b"},
			replies:    []string{"second"},
			want:       "b",
			wantPairs:  [][2]string{{"a", "b"}},
		},
		{
			name:       "left fold carries the winner forward",
			candidates: []string{"a", "b", "c", "d"},
			replies:    []string{"2", "first", "2"},
			want:       "d",
			wantPairs:  [][2]string{{"a", "b"}, {"b", "c"}, {"b", "d"}},
		},
		{
			name:       "ambiguous vote keeps the current winner",
			candidates: []string{"a", "b", "c"},
			replies:    []string{"hmm", "no idea"},
			want:       "a",
			wantPairs:  [][2]string{{"a", "b"}, {"a", "c"}},
		},
		{
			name:       "judge failure keeps the current winner",
			candidates: []string{"a", "b", "c"},
			replies:    []string{"", "second"},
			errs:       []error{boom, nil},
			want:       "c",
			wantPairs:  [][2]string{{"a", "b"}, {"a", "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := &scriptedJudge{replies: tt.replies, errs: tt.errs}
			got, err := NewReducer(judge, nil).Reduce(context.Background(), tt.candidates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPairs, judge.pairs)
		})
	}
}

func TestReducer_Reduce_Empty(t *testing.T) {
	_, err := NewReducer(&scriptedJudge{}, nil).Reduce(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestReducer_Reduce_UsesNMinusOneJudgeCalls(t *testing.T) {
	for n := 1; n <= 6; n++ {
		candidates := make([]string, n)
		for i := range candidates {
			candidates[i] = fmt.Sprintf("c%d", i)
		}
		judge := &scriptedJudge{}
		_, err := NewReducer(judge, nil).Reduce(context.Background(), candidates)
		require.NoError(t, err)
		assert.Len(t, judge.pairs, n-1)
	}
}

func TestReducer_Reduce_AlwaysReturnsACandidate(t *testing.T) {
	replies := []string{"1", "2", "first", "second", "garbage", "", "2 then 1"}
	candidates := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	for offset := range replies {
		rotated := append(append([]string{}, replies[offset:]...), replies[:offset]...)
		judge := &scriptedJudge{replies: rotated}
		got, err := NewReducer(judge, nil).Reduce(context.Background(), candidates)
		require.NoError(t, err)
		assert.Contains(t, candidates, got)
	}
}

func TestReducer_Reduce_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	judge := &scriptedJudge{replies: []string{"2", "2"}}
	got, err := NewReducer(judge, nil).Reduce(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	assert.Empty(t, judge.pairs)
}
