package pipeline

import (
	"strings"

	"github.com/samber/lo"

	"github.com/otherjamesbrown/emlsync/pkg/ingest/eml"
)

// Participant is one distinct address on a message.
type Participant struct {
	Email      string // lower-cased
	Name       string
	Domain     string
	IsSender   bool
	IsInternal bool
}

// ExtractParticipants returns the sender followed by To, Cc and Bcc,
// deduplicated by address with the first occurrence kept. Entries without an
// address are dropped.
func ExtractParticipants(msg *eml.ParsedEmail, classifier *Classifier) []Participant {
	senderEmail := normalizeEmail(msg.From.Email)

	all := lo.FilterMap(msg.AllParticipantPairs(), func(a eml.Address, _ int) (Participant, bool) {
		email := normalizeEmail(a.Email)
		if email == "" {
			return Participant{}, false
		}
		return Participant{
			Email:      email,
			Name:       strings.TrimSpace(a.Name),
			Domain:     DomainOf(email),
			IsSender:   senderEmail != "" && email == senderEmail,
			IsInternal: classifier.IsInternal(email),
		}, true
	})

	return lo.UniqBy(all, func(p Participant) string { return p.Email })
}

// DomainOf returns the lower-cased text after the last '@', or "".
func DomainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[i+1:]))
}

// SplitName splits a display name into its first token and the remainder.
func SplitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
