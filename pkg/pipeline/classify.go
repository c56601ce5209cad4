package pipeline

import "strings"

// Classifier decides which addresses belong to the operator's own
// organization. Internal participants never reach the CRM.
type Classifier struct {
	domains   []string
	addresses map[string]bool
}

// NewClassifier creates a classifier. Matching is case-insensitive; a domain
// also matches its subdomains.
func NewClassifier(domains, addresses []string) *Classifier {
	c := &Classifier{addresses: make(map[string]bool, len(addresses))}
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".@")
		if d != "" {
			c.domains = append(c.domains, d)
		}
	}
	for _, a := range addresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			c.addresses[a] = true
		}
	}
	return c
}

// IsInternal reports whether email is internal.
func (c *Classifier) IsInternal(email string) bool {
	if c == nil {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if c.addresses[email] {
		return true
	}
	domain := DomainOf(email)
	if domain == "" {
		return false
	}
	for _, d := range c.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
