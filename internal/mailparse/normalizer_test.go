package mailparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAddresses_PreservesOrderAndDuplicates(t *testing.T) {
	tests := []struct {
		name string
		list string
		want []string
	}{
		{
			name: "names and brackets",
			list: `"Jane Doe" <jane@example.com>, bob@example.org`,
			want: []string{"jane@example.com", "bob@example.org"},
		},
		{
			name: "duplicates pass through",
			list: "a@x.com, a@x.com",
			want: []string{"a@x.com", "a@x.com"},
		},
		{
			name: "empty list",
			list: "   ",
			want: nil,
		},
		{
			name: "plus addressing",
			list: "user+tag@example.com",
			want: []string{"user+tag@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAddresses(tt.list))
		})
	}
}

func TestExtractNonSupportParticipants(t *testing.T) {
	lists := []string{
		`"Jane" <jane@example.com>, Support <support@acme.test>`,
		"JANE@example.com, bob@example.org",
	}

	got := ExtractNonSupportParticipants(lists, "Support@Acme.Test")

	// Lowercased, deduplicated, support address excluded, order preserved
	assert.Equal(t, []string{"jane@example.com", "bob@example.org"}, got)
}

func TestNormalize_FirstInThreadKeepsFullBody(t *testing.T) {
	parsed := &ParsedMessage{
		SenderEmail: "jane@example.com",
		BodyHTML:    `<p>Hello</p><blockquote>old quoted text</blockquote>`,
	}

	normalized := Normalize(parsed, true)

	assert.True(t, normalized.IsHTML)
	assert.Contains(t, normalized.CanonicalBody, "blockquote")
	assert.Contains(t, normalized.CleanedUpText, "old quoted text")
}

func TestNormalize_FollowUpStripsQuotedReply(t *testing.T) {
	parsed := &ParsedMessage{
		SenderEmail: "jane@example.com",
		BodyHTML:    `<p>Thanks, that worked!</p><div class="gmail_quote">On Mon, Jan 1, Support wrote: everything before</div>`,
	}

	normalized := Normalize(parsed, false)

	// The canonical body keeps the full content; only the cleaned-up text
	// loses the quote
	assert.Contains(t, normalized.CanonicalBody, "gmail_quote")
	assert.Contains(t, normalized.CleanedUpText, "Thanks, that worked!")
	assert.NotContains(t, normalized.CleanedUpText, "everything before")
}

func TestNormalize_FollowUpStripsBlockquote(t *testing.T) {
	parsed := &ParsedMessage{
		BodyHTML: `<p>Follow-up question</p><blockquote>previous answer</blockquote>`,
	}

	normalized := Normalize(parsed, false)

	assert.NotContains(t, normalized.CleanedUpText, "previous answer")
	assert.Contains(t, normalized.CleanedUpText, "Follow-up question")
}

func TestNormalize_PlainTextPromotedToParagraphs(t *testing.T) {
	parsed := &ParsedMessage{
		BodyText: "First paragraph\nstill first\n\nSecond paragraph",
	}

	normalized := Normalize(parsed, true)

	assert.False(t, normalized.IsHTML)
	assert.Equal(t, "<p>First paragraph<br />still first</p><p>Second paragraph</p>", normalized.CanonicalBody)
}

func TestNormalize_TrimsTrailingBreaks(t *testing.T) {
	parsed := &ParsedMessage{
		BodyHTML: `<p>Hello</p><br /><br/><p> </p>&nbsp;  `,
	}

	normalized := Normalize(parsed, true)

	assert.Equal(t, "<p>Hello</p>", normalized.CanonicalBody)
}

func TestNormalize_AppliesUnicodeNormalization(t *testing.T) {
	// U+00E9 decomposes to "e" plus the combining accent U+0301 under NFKD
	parsed := &ParsedMessage{
		BodyText: "café",
	}

	normalized := Normalize(parsed, true)

	assert.Equal(t, "<p>café</p>", normalized.CanonicalBody)
}

func TestNormalize_OnWroteMarkerStripped(t *testing.T) {
	parsed := &ParsedMessage{
		BodyHTML: "New content here\nOn Mon, Jan 1, 2024 at 9:00 AM Support wrote:\nquoted reply body",
	}

	normalized := Normalize(parsed, false)

	assert.Contains(t, normalized.CleanedUpText, "New content here")
	assert.NotContains(t, normalized.CleanedUpText, "quoted reply body")
}

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "paragraphs become lines",
			html: "<p>one</p><p>two</p>",
			want: "one\ntwo",
		},
		{
			name: "entities decoded",
			html: "<p>a &amp; b &lt;c&gt;</p>",
			want: "a & b <c>",
		},
		{
			name: "scripts removed",
			html: `<p>safe</p><script>alert("x")</script>`,
			want: "safe",
		},
		{
			name: "styles removed case-insensitively",
			html: "<STYLE type=\"text/css\">p { color: red }</STYLE><p>visible</p><SCRIPT>var x\nvar y</SCRIPT>",
			want: "visible",
		},
		{
			name: "whitespace collapsed",
			html: "<p>a   b\t c</p>",
			want: "a b c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.html))
		})
	}
}

func TestParseFromHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantName  string
		wantEmail string
	}{
		{"quoted name", `"Jane Doe" <Jane@Example.com>`, "Jane Doe", "jane@example.com"},
		{"bare address", "jane@example.com", "", "jane@example.com"},
		{"unquoted name", "Jane <jane@example.com>", "Jane", "jane@example.com"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, email := parseFromHeader(tt.header)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantEmail, email)
		})
	}
}

func TestParseRawMessage_SimpleTextEmail(t *testing.T) {
	raw := []byte("From: \"Jane Doe\" <jane@example.com>\r\n" +
		"To: support@acme.test\r\n" +
		"Cc: bob@example.org\r\n" +
		"Subject: Order question\r\n" +
		"Message-ID: <abc@mail.example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Where is my order?\r\n")

	parsed, err := ParseRawMessage(raw)
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", parsed.SenderEmail)
	assert.Equal(t, "Jane Doe", parsed.SenderName)
	assert.Equal(t, "Order question", parsed.Subject)
	assert.Equal(t, "<abc@mail.example.com>", parsed.MessageID)
	assert.Equal(t, "bob@example.org", parsed.CcHeader)
	assert.Contains(t, parsed.BodyText, "Where is my order?")
	assert.Empty(t, parsed.Attachments)
}
