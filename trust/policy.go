// Package trust decides whether a webhook sender may issue commands.
// The policy is a flat list of addresses and @domain suffixes; it
// never consults the chat platform.
package trust

import (
	"strings"

	"github.com/knightjoel/zpark/core"
)

// List is the sender allow list. The zero value permits every sender;
// a configured list permits only exact address matches and @domain
// suffix matches. The default configuration carries a single blank
// entry, which matches no address and therefore denies everyone.
type List struct {
	entries []string
}

func NewList(entries []string) *List {
	normalized := make([]string, 0, len(entries))
	for _, entry := range entries {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(entry)))
	}
	return &List{entries: normalized}
}

// Configured reports whether any entries were supplied, including the
// blank deny-all sentinel.
func (l *List) Configured() bool {
	return l != nil && len(l.entries) > 0
}

// Allows reports whether the sender address passes the policy. The
// error return distinguishes a structural problem (no address on the
// event) from a plain policy denial.
func (l *List) Allows(email string) (bool, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return false, missingSenderError()
	}
	if !l.Configured() {
		return true, nil
	}
	for _, entry := range l.entries {
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "@") {
			if strings.HasSuffix(addr, entry) {
				return true, nil
			}
			continue
		}
		if addr == entry {
			return true, nil
		}
	}
	return false, nil
}

// Check wraps Allows with the bot error taxonomy: untrusted senders
// come back as an authorization error the intake pipeline can soak
// up without failing the webhook delivery.
func (l *List) Check(email string) error {
	allowed, err := l.Allows(email)
	if err != nil {
		return err
	}
	if !allowed {
		return untrustedSenderError(email)
	}
	return nil
}

var _ core.TrustPolicy = (*List)(nil)
