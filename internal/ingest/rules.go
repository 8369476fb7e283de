package ingest

import (
	"regexp"
	"strings"
)

// Labels whose messages never warrant a support response. SENT is excluded
// on purpose; staff replies sent through the Gmail UI carry it and are
// handled by the staff-sender rule instead.
var ignoredLabels = map[string]bool{
	"CATEGORY_PROMOTIONS": true,
	"CATEGORY_SOCIAL":     true,
	"CATEGORY_UPDATES":    true,
	"CATEGORY_FORUMS":     true,
	"SPAM":                true,
	"DRAFT":               true,
}

// transactionalSenderRe matches sender local parts that indicate automated
// mail no human will follow up on
var transactionalSenderRe = regexp.MustCompile(`(?i)^(?:no-?reply|do-?not-?reply|notifications?|mailer-daemon|postmaster)(?:[+._-]|$)`)

// hasIgnoredLabel reports whether any provider label marks the message as
// not needing a response
func hasIgnoredLabel(labelIDs []string) bool {
	for _, label := range labelIDs {
		if ignoredLabels[label] {
			return true
		}
	}
	return false
}

// isTransactionalSender reports whether the address is an automated sender
func isTransactionalSender(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	local, _, found := strings.Cut(address, "@")
	if !found {
		return false
	}
	return transactionalSenderRe.MatchString(local)
}
