package pipeline

import (
	"errors"
	"strings"

	"github.com/otherjamesbrown/emlsync/pkg/crm"
)

// ErrNoParticipants halts a run in which no external participant resolved.
var ErrNoParticipants = errors.New("no participants resolved")

// Primary is the contact and company a message is mainly about.
type Primary struct {
	Contact   ResolvedParticipant
	CompanyID *crm.ID
}

// SelectPrimary picks the primary contact: the oracle's suggestion when it
// matches a resolved address, else the first resolved participant that is not
// the sender, else the first resolved participant. companyID is carried
// through unchanged.
func SelectPrimary(resolved []ResolvedParticipant, suggested string, companyID *crm.ID) (Primary, error) {
	if len(resolved) == 0 {
		return Primary{}, ErrNoParticipants
	}

	pick := resolved[0]
	if s := strings.ToLower(strings.TrimSpace(suggested)); s != "" {
		for _, rp := range resolved {
			if rp.Email == s {
				return Primary{Contact: rp, CompanyID: companyID}, nil
			}
		}
	}
	for _, rp := range resolved {
		if !rp.IsSender {
			pick = rp
			break
		}
	}
	return Primary{Contact: pick, CompanyID: companyID}, nil
}
