package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
)

func TestSelectPrimary(t *testing.T) {
	sender := ResolvedParticipant{Participant: Participant{Email: "sarah@cyberdyne.ai", IsSender: true}, ContactID: 1}
	john := ResolvedParticipant{Participant: Participant{Email: "john@initech.example"}, ContactID: 2}
	kyle := ResolvedParticipant{Participant: Participant{Email: "kyle@resistance.example"}, ContactID: 3}
	company := crm.IDPtr(9)

	tests := []struct {
		name      string
		resolved  []ResolvedParticipant
		suggested string
		want      crm.ID
	}{
		{"suggestion wins", []ResolvedParticipant{sender, john, kyle}, "kyle@resistance.example", 3},
		{"suggestion is case-insensitive", []ResolvedParticipant{sender, john, kyle}, " Kyle@Resistance.Example ", 3},
		{"unknown suggestion falls back to first non-sender", []ResolvedParticipant{sender, john, kyle}, "nobody@x.example", 2},
		{"first non-sender", []ResolvedParticipant{sender, john}, "", 2},
		{"sender only", []ResolvedParticipant{sender}, "", 1},
		{"sender can be suggested", []ResolvedParticipant{sender, john}, "sarah@cyberdyne.ai", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectPrimary(tt.resolved, tt.suggested, company)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Contact.ContactID)
			assert.Equal(t, company, got.CompanyID)
		})
	}
}

func TestSelectPrimary_Empty(t *testing.T) {
	_, err := SelectPrimary(nil, "a@b.example", nil)
	assert.ErrorIs(t, err, ErrNoParticipants)
}
