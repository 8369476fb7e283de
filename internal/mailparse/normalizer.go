package mailparse

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizedMessage is the canonical form of an inbound message produced by
// Normalize and consumed by the ingestion pipeline
type NormalizedMessage struct {
	FromAddress   string
	FromName      string
	To            []string
	CC            []string
	BCC           []string
	References    string
	IsHTML        bool
	CanonicalBody string
	CleanedUpText string
}

var (
	addressRe       = regexp.MustCompile(`[A-Za-z0-9._%+\-']+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	trailingBreakRe = regexp.MustCompile(`(?i)(?:<br\s*/?>|<p>\s*</p>|&nbsp;|\s)+$`)
	blockquoteRe    = regexp.MustCompile(`(?is)<blockquote[^>]*>.*?</blockquote>`)
	gmailQuoteRe    = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*gmail_quote[^"]*"[^>]*>.*$`)
	onWroteRe       = regexp.MustCompile(`(?im)^\s*On .{1,200} wrote:\s*$[\s\S]*`)
	scriptRe        = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe         = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	lineBreakTagRe  = regexp.MustCompile(`(?i)<(?:/p|br\s*/?)>`)
	anyTagRe        = regexp.MustCompile(`<[^>]*>`)
)

// ExtractAddresses pulls the bare addresses out of a free-text address list
// such as `"Name <a@x.com>, b@y.com"`. Order is preserved and duplicates
// pass through; participant extraction downstream does its own dedup.
func ExtractAddresses(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return addressRe.FindAllString(list, -1)
}

// ExtractNonSupportParticipants flattens address lists into a lowercased,
// deduplicated, order-preserving participant list excluding the mailbox's
// own support address.
func ExtractNonSupportParticipants(lists []string, supportAddress string) []string {
	support := strings.ToLower(strings.TrimSpace(supportAddress))
	seen := make(map[string]bool)
	var participants []string
	for _, list := range lists {
		for _, addr := range ExtractAddresses(list) {
			addr = strings.ToLower(addr)
			if addr == support || seen[addr] {
				continue
			}
			seen[addr] = true
			participants = append(participants, addr)
		}
	}
	return participants
}

// Normalize converts a parsed message into its canonical ingestion form.
// Quoted-reply stripping only applies to follow-up messages; the first
// message of a thread keeps its full body as the cleaned-up text source.
func Normalize(parsed *ParsedMessage, firstInThread bool) *NormalizedMessage {
	body, isHTML := canonicalBody(parsed)

	source := body
	if !firstInThread {
		source = stripQuotedReply(body)
	}

	return &NormalizedMessage{
		FromAddress:   parsed.SenderEmail,
		FromName:      parsed.SenderName,
		To:            ExtractAddresses(parsed.ToHeader),
		CC:            ExtractAddresses(parsed.CcHeader),
		BCC:           ExtractAddresses(parsed.BccHeader),
		References:    parsed.References,
		IsHTML:        isHTML,
		CanonicalBody: body,
		CleanedUpText: HTMLToText(source),
	}
}

// canonicalBody picks the HTML body when present, otherwise promotes the
// plain-text body to HTML paragraphs, then trims trailing break-only tags
// and applies NFKD unicode normalization.
func canonicalBody(parsed *ParsedMessage) (string, bool) {
	isHTML := parsed.BodyHTML != ""
	body := parsed.BodyHTML
	if body == "" {
		body = textToParagraphs(parsed.BodyText)
	}
	body = trailingBreakRe.ReplaceAllString(body, "")
	return norm.NFKD.String(body), isHTML
}

// textToParagraphs converts plain text line breaks to paragraph breaks
func textToParagraphs(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimRight(p, "\n")
		if strings.TrimSpace(p) == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(p, "\n", "<br />"))
		b.WriteString("</p>")
	}
	return b.String()
}

// stripQuotedReply removes quoted previous-message content from an HTML body
func stripQuotedReply(html string) string {
	html = gmailQuoteRe.ReplaceAllString(html, "")
	html = blockquoteRe.ReplaceAllString(html, "")
	html = onWroteRe.ReplaceAllString(html, "")
	return strings.TrimSpace(html)
}

// HTMLToText converts an HTML body to plain text
func HTMLToText(html string) string {
	// Remove script and style elements
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")

	// Paragraph and break tags become line breaks before tags are dropped
	html = lineBreakTagRe.ReplaceAllString(html, "\n")

	// Remove remaining HTML tags
	html = anyTagRe.ReplaceAllString(html, " ")

	// Decode common HTML entities
	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", `"`)
	html = strings.ReplaceAll(html, "&#39;", "'")

	// Collapse whitespace per line, preserving paragraph structure
	lines := strings.Split(html, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
