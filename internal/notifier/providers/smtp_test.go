package providers

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "bot@example.com", "pw", "")
	now := time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC)

	msg := string(s.Message("me@example.com", "Hello", "<p>hi</p>", "hi", now))
	assert.True(t, strings.HasPrefix(msg, "From: bot@example.com\r\nTo: me@example.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, msg, "Date: Fri, 08 Mar 2024 09:30:00 +0000\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=\"utf-8\"\r\n\r\nhi\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=\"utf-8\"\r\n\r\n<p>hi</p>\r\n")

	start := strings.Index(msg, `boundary="`) + len(`boundary="`)
	boundary := msg[start : start+strings.Index(msg[start:], `"`)]
	assert.Equal(t, 3, strings.Count(msg, "--"+boundary))
	assert.True(t, strings.HasSuffix(msg, "--"+boundary+"--\r\n"))
}

func TestSend(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 2525, "", "", "bot@example.com")
	var gotAddr, gotFrom string
	var gotTo []string
	var gotAuth smtp.Auth
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo = addr, a, from, to
		return nil
	}

	require.NoError(t, s.Send("me@example.com", "s", "h", "p"))
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Nil(t, gotAuth, "no auth without a username")
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"me@example.com"}, gotTo)

	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	assert.EqualError(t, s.Send("me@example.com", "s", "h", "p"), "failed to send email: refused")
}
