package mailparse

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
)

// ParsedMessage represents a raw RFC 822 message decoded from the provider
type ParsedMessage struct {
	SenderEmail string
	SenderName  string
	Subject     string
	MessageID   string
	References  string
	ToHeader    string
	CcHeader    string
	BccHeader   string
	BodyText    string
	BodyHTML    string
	Attachments []ParsedAttachment
}

// ParsedAttachment represents a provider-native attachment
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Content     io.Reader
	Size        int64
}

// ParseRawMessage parses a raw email message (Gmail format=raw payloads,
// already base64-decoded) into its canonical parts
func ParseRawMessage(raw []byte) (*ParsedMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	parsed := &ParsedMessage{
		Subject:    env.GetHeader("Subject"),
		MessageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		References: strings.TrimSpace(env.GetHeader("References")),
		ToHeader:   env.GetHeader("To"),
		CcHeader:   env.GetHeader("Cc"),
		BccHeader:  env.GetHeader("Bcc"),
		BodyText:   env.Text,
		BodyHTML:   env.HTML,
	}

	parsed.SenderName, parsed.SenderEmail = parseFromHeader(env.GetHeader("From"))

	for _, att := range env.Attachments {
		parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Content:     bytes.NewReader(att.Content),
			Size:        int64(len(att.Content)),
		})
	}

	return parsed, nil
}

// parseFromHeader extracts name and email from a From header
func parseFromHeader(from string) (name, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	// Bare address with no display name
	if !strings.Contains(from, "<") {
		return "", strings.ToLower(from)
	}

	// Pattern: "Name" <email@example.com> or Name <email@example.com>
	re := regexp.MustCompile(`^(?:"?([^"<]*)"?\s*)?<?([^<>\s]+@[^<>\s]+)>?$`)
	matches := re.FindStringSubmatch(from)

	if len(matches) >= 3 {
		name = strings.TrimSpace(matches[1])
		email = strings.TrimSpace(matches[2])
		name = strings.Trim(name, `"`)
	} else {
		// Fallback: treat entire string as email
		email = from
	}

	return name, strings.ToLower(email)
}
