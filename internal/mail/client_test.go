package mail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawMessage builds an RFC 822 message with CRLF line endings.
func rawMessage(body string) []byte {
	return []byte(strings.ReplaceAll(body, "\n", "\r\n"))
}

const multipartAlternative = `From: bank@example.com
To: me@example.com
Subject: [Mino_DATA] card approval
Date: Fri, 15 Mar 2024 09:12:00 +0900
Message-ID: <approval-1@bank.example>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset="utf-8"

Payment 5,600 KRW at Starbucks
--b1
Content-Type: text/html; charset="utf-8"

<html><body><b>Payment 5,600 KRW</b></body></html>
--b1--
`

func TestParseMessageMultipart(t *testing.T) {
	msg, err := parseMessage(rawMessage(multipartAlternative))
	require.NoError(t, err)

	assert.Equal(t, "[Mino_DATA] card approval", msg.Subject)
	assert.Equal(t, "<approval-1@bank.example>", msg.MessageID)
	assert.Equal(t, 2024, msg.Date.Year())
	// text/plain wins over text/html.
	assert.Equal(t, "Payment 5,600 KRW at Starbucks", strings.TrimSpace(msg.Body))
}

func TestParseMessageHTMLOnly(t *testing.T) {
	raw := `From: bank@example.com
Subject: [Mino_DATA] card approval
Message-ID: <approval-2@bank.example>
MIME-Version: 1.0
Content-Type: text/html; charset="utf-8"

<html><body>Payment 9,000 KRW</body></html>
`
	msg, err := parseMessage(rawMessage(raw))
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "Payment 9,000 KRW")
}

func TestParseMessagePlainSingle(t *testing.T) {
	raw := `From: bank@example.com
Subject: [Mino_DATA] card approval
Message-ID: <approval-3@bank.example>

Payment 3,000 KRW at GS25
`
	msg, err := parseMessage(rawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "Payment 3,000 KRW at GS25", strings.TrimSpace(msg.Body))
}

func TestParseMessageEncodedSubject(t *testing.T) {
	raw := `From: bank@example.com
Subject: =?utf-8?B?W01pbm9fREFUQV0g7Lm065Oc7Iq57J24?=
Message-ID: <approval-4@bank.example>

Payment
`
	msg, err := parseMessage(rawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "[Mino_DATA] 카드승인", msg.Subject)
}

func TestFetchCandidatesRequiresCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no user", Config{AppPassword: "app-pass"}},
		{"no password", Config{User: "me@gmail.com"}},
		{"neither", Config{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(tc.cfg, zerolog.Nop())
			_, err := c.FetchCandidates(context.Background(), 7)
			assert.ErrorIs(t, err, ErrNoCredentials)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, "imap.gmail.com", cfg.Host)
	assert.Equal(t, 993, cfg.Port)
	assert.Equal(t, "[Mino_DATA]", cfg.SubjectTag)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 60*time.Second, cfg.SessionTimeout)
	assert.Equal(t, 50, cfg.MaxMessages)

	custom := Config{Host: "mail.example.com", Port: 1993, SubjectTag: "[X]"}.withDefaults()
	assert.Equal(t, "mail.example.com", custom.Host)
	assert.Equal(t, 1993, custom.Port)
	assert.Equal(t, "[X]", custom.SubjectTag)
}

func TestSessionDeadline(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("session timeout bounds an unbounded context", func(t *testing.T) {
		got := sessionDeadline(context.Background(), now, 60*time.Second)
		assert.Equal(t, now.Add(60*time.Second), got)
	})

	t.Run("earlier context deadline wins", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), now.Add(5*time.Second))
		defer cancel()
		got := sessionDeadline(ctx, now, 60*time.Second)
		assert.Equal(t, now.Add(5*time.Second), got)
	})

	t.Run("later context deadline is ignored", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), now.Add(10*time.Minute))
		defer cancel()
		got := sessionDeadline(ctx, now, 60*time.Second)
		assert.Equal(t, now.Add(60*time.Second), got)
	})
}

func TestSinceDate(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 45, 30, 0, time.UTC)

	tests := []struct {
		daysBack int
		want     time.Time
	}{
		{1, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{7, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{30, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got := sinceDate(now, tc.daysBack)
		if !got.Equal(tc.want) {
			t.Fatalf("sinceDate(%d) = %v, want %v", tc.daysBack, got, tc.want)
		}
	}
}
