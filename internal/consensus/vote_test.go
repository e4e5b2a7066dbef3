package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVote(t *testing.T) {
	tests := []struct {
		reply string
		want  Choice
	}{
		{"1", ChoiceFirst},
		{"I vote for the FIRST one.", ChoiceFirst},
		{"2", ChoiceSecond},
		{"Second.", ChoiceSecond},
		{"Input 2 is better than input 1", ChoiceFirst}, // "1" is checked first
		{"neither", ChoiceNone},
		{"", ChoiceNone},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVote(tt.reply))
		})
	}
}

func TestChoice_String(t *testing.T) {
	assert.Equal(t, "first", ChoiceFirst.String())
	assert.Equal(t, "second", ChoiceSecond.String())
	assert.Equal(t, "none", ChoiceNone.String())
}
