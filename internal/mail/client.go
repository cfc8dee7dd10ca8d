// Package mail retrieves candidate payment-notification messages from an
// IMAP mailbox and parses them into a form the sync pipeline can consume.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	gomail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	// Register extended charsets for decoding non-UTF-8 messages.
	_ "github.com/emersion/go-message/charset"
)

// ErrNoCredentials is returned before any network attempt when the mailbox
// user or app password is missing.
var ErrNoCredentials = errors.New("mail: mailbox credentials missing")

// Config holds mailbox connection settings. Zero values fall back to the
// Gmail defaults the app ships with.
type Config struct {
	User        string
	AppPassword string
	Host        string        // default imap.gmail.com
	Port        int           // default 993
	SubjectTag     string        // default "[Mino_DATA]"; candidates must carry it
	DialTimeout    time.Duration // default 10s
	SessionTimeout time.Duration // default 60s, bounds the whole IMAP session
	MaxMessages    int           // default 50, newest kept
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "imap.gmail.com"
	}
	if c.Port == 0 {
		c.Port = 993
	}
	if c.SubjectTag == "" {
		c.SubjectTag = "[Mino_DATA]"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 60 * time.Second
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 50
	}
	return c
}

// Message is one successfully parsed candidate email.
type Message struct {
	Subject   string
	Date      time.Time
	MessageID string
	Body      string // text/plain part preferred, text/html fallback
}

// Client fetches candidate messages over IMAP.
type Client struct {
	cfg Config
	log zerolog.Logger
}

// NewClient creates a mail client. It does not connect; every call to
// FetchCandidates opens and closes its own session.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return &Client{cfg: cfg.withDefaults(), log: log}
}

// FetchCandidates opens a read-only session, searches for messages received
// in the last daysBack days whose subject carries the configured tag, and
// returns the newest MaxMessages of them in ascending server-sequence order.
// Individual messages that fail to parse are dropped, not fatal; the result
// contains only successfully parsed messages. The client never retries.
func (c *Client) FetchCandidates(ctx context.Context, daysBack int) ([]Message, error) {
	if c.cfg.User == "" || c.cfg.AppPassword == "" {
		return nil, ErrNoCredentials
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if daysBack < 1 {
		daysBack = 1
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: c.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	// A stalled server must not hang the session forever: every read and
	// write after the dial is bounded by the session deadline (or the
	// caller's earlier context deadline).
	if err := conn.SetDeadline(sessionDeadline(ctx, time.Now(), c.cfg.SessionTimeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set session deadline: %w", err)
	}

	cli := imapclient.New(conn, nil)
	defer cli.Close()

	if err := cli.Login(c.cfg.User, c.cfg.AppPassword).Wait(); err != nil {
		return nil, fmt.Errorf("login %s: %w", c.cfg.User, err)
	}
	defer func() {
		_ = cli.Logout().Wait()
	}()

	if _, err := cli.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	since := sinceDate(time.Now(), daysBack)
	criteria := &imap.SearchCriteria{
		Since: since,
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: c.cfg.SubjectTag},
		},
	}
	searchData, err := cli.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	nums := searchData.AllSeqNums()
	if len(nums) == 0 {
		return nil, nil
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	if len(nums) > c.cfg.MaxMessages {
		nums = nums[len(nums)-c.cfg.MaxMessages:]
	}

	fetchCmd := cli.Fetch(imap.SeqSetNum(nums...), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{{}},
	})
	buffers, err := fetchCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	messages := make([]Message, 0, len(buffers))
	for _, buf := range buffers {
		raw := buf.FindBodySection(&imap.FetchItemBodySection{})
		if raw == nil {
			continue
		}
		msg, err := parseMessage(raw)
		if err != nil {
			c.log.Warn().Err(err).Uint32("seq", buf.SeqNum).Msg("dropping unparsable message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// sessionDeadline picks the connection deadline: now plus the session
// timeout, or the context's own deadline when that comes first.
func sessionDeadline(ctx context.Context, now time.Time, timeout time.Duration) time.Time {
	deadline := now.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// sinceDate computes the search window start: today minus (daysBack-1),
// truncated to midnight so the whole first day is included.
func sinceDate(now time.Time, daysBack int) time.Time {
	d := now.AddDate(0, 0, -(daysBack - 1))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// parseMessage parses a raw RFC 822 message into subject, date, message id
// and the best available body.
func parseMessage(raw []byte) (Message, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	var msg Message
	msg.Subject, _ = mr.Header.Subject()
	msg.Date, _ = mr.Header.Date()
	msg.MessageID, _ = mr.Header.MessageID()

	var textBody, htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever parts already decoded.
			break
		}
		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		}
	}

	msg.Body = textBody
	if msg.Body == "" {
		msg.Body = htmlBody
	}
	if msg.Body == "" && msg.MessageID == "" {
		return Message{}, errors.New("empty message")
	}
	return msg, nil
}
