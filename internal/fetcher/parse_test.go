package fetcher

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartFixture = "From: \"Jane Doe\" <Jane@Customer.com>\r\n" +
	"To: support@inbox.example.com, \"Ops\" <ops@inbox.example.com>\r\n" +
	"Cc: boss@customer.com\r\n" +
	"Subject: Printer on fire\r\n" +
	"Date: Mon, 04 Mar 2024 10:15:00 +0000\r\n" +
	"Message-Id: <reply-2@customer.com>\r\n" +
	"In-Reply-To: <reply-1@customer.com>\r\n" +
	"References: <root@customer.com> <reply-1@customer.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"It is on fire again.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>It is on fire again.</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; name=\"log.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"log.txt\"\r\n" +
	"Content-Id: <log@customer.com>\r\n" +
	"\r\n" +
	"smoke detected\r\n" +
	"--outer--\r\n"

func TestParseMessageMultipart(t *testing.T) {
	raw, err := ParseMessage(42, strings.NewReader(multipartFixture))
	require.NoError(t, err)

	assert.EqualValues(t, 42, raw.UID)
	assert.Equal(t, "reply-2@customer.com", raw.MessageID)
	assert.Equal(t, "reply-1@customer.com", raw.InReplyTo)
	assert.Equal(t, []string{"root@customer.com", "reply-1@customer.com"}, raw.References)
	assert.Equal(t, "Printer on fire", raw.Subject)
	assert.Equal(t, "jane@customer.com", raw.From.Email)
	assert.Equal(t, "Jane Doe", raw.From.Name)
	require.Len(t, raw.To, 2)
	assert.Equal(t, "ops@inbox.example.com", raw.To[1].Email)
	require.Len(t, raw.Cc, 1)
	assert.Empty(t, raw.Bcc)
	assert.True(t, raw.Date.Equal(time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, "It is on fire again.", strings.TrimSpace(raw.TextBody))
	assert.Equal(t, "<p>It is on fire again.</p>", strings.TrimSpace(raw.HTMLBody))
	assert.Equal(t, []string{"Printer on fire"}, raw.Headers["Subject"])

	require.Len(t, raw.Attachments, 1)
	att := raw.Attachments[0]
	assert.Equal(t, "log.txt", att.Filename)
	assert.Equal(t, "text/plain", att.MimeType)
	assert.Equal(t, "log@customer.com", att.ContentID)
	assert.Equal(t, "smoke detected", strings.TrimSpace(string(att.Data)))
	assert.EqualValues(t, len(att.Data), att.Size)
}

func TestParseMessagePlainWithoutIDs(t *testing.T) {
	msg := "From: bob@vendor.com\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\nhello\r\n"
	raw, err := ParseMessage(1, strings.NewReader(msg))
	require.NoError(t, err)
	assert.Empty(t, raw.MessageID)
	assert.Empty(t, raw.References)
	assert.Equal(t, "bob@vendor.com", raw.From.Email)
	assert.Equal(t, "hello", strings.TrimSpace(raw.TextBody))
	assert.True(t, raw.Date.IsZero())
}

func TestFromIMAPUsesEnvelopeFallbacks(t *testing.T) {
	section := &imap.BodySectionName{Peek: true}
	internal := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          9,
		InternalDate: internal,
		Envelope:     &imap.Envelope{MessageId: "<env@host>", Subject: "from envelope"},
		Body: map[*imap.BodySectionName]imap.Literal{
			{}: bytes.NewBufferString("From: a@b.com\r\nContent-Type: text/plain\r\n\r\nbody\r\n"),
		},
	}

	raw, err := fromIMAP(msg, section)
	require.NoError(t, err)
	assert.Equal(t, "env@host", raw.MessageID)
	assert.Equal(t, "from envelope", raw.Subject)
	assert.True(t, raw.Date.Equal(internal))

	_, err = fromIMAP(&imap.Message{Uid: 10}, section)
	assert.Error(t, err)
}

func TestRaceTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	err := race(context.Background(), 10*time.Millisecond, "search", func() error {
		<-release
		return nil
	})
	assert.True(t, errors.Is(err, ErrTimeout))

	err = race(context.Background(), time.Second, "noop", func() error { return nil })
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = race(ctx, 0, "cancelled", func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestXOAuth2Start(t *testing.T) {
	mech, ir, err := (&xoauth2Client{username: "me@gmail.com", token: "tok"}).Start()
	require.NoError(t, err)
	assert.Equal(t, "XOAUTH2", mech)
	assert.Equal(t, "user=me@gmail.com\x01auth=Bearer tok\x01\x01", string(ir))
}
