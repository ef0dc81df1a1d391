package email

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hrassist/internal/platform/config"
)

func TestMaskAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "jane.doe@example.com", want: "j******e@example.com"},
		{in: "ab@example.com", want: "a*@example.com"},
		{in: "a@example.com", want: "a*@example.com"},
		{in: "not-an-address", want: "***"},
		{in: "@example.com", want: "***"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			if got := MaskAddress(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("hr@example.com", "e@example.com", "Leave APPROVED", "body"))
	for _, part := range []string{"From: hr@example.com\r\n", "To: e@example.com\r\n", "Subject: Leave APPROVED\r\n", "\r\n\r\nbody"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("expected message to contain %q, got %q", part, msg)
		}
	}
}

func TestBuildMessageEncodesSubjectAndLineEndings(t *testing.T) {
	msg := string(buildMessage("HR <hr@corp.example>", "e@example.com", "Congés approuvés", "line one\nline two"))
	if strings.Contains(msg, "Congés") {
		t.Fatalf("expected non-ASCII subject to be encoded, got %q", msg)
	}
	if !strings.Contains(msg, "@corp.example>\r\n") {
		t.Fatalf("expected Message-ID on the sender domain, got %q", msg)
	}
	if !strings.HasSuffix(msg, "line one\r\nline two") {
		t.Fatalf("expected CRLF body, got %q", msg)
	}
}

func TestNewPicksMailer(t *testing.T) {
	if _, ok := New(config.Config{EmailDisableSend: true, EmailEnabled: true}).(simulatedMailer); !ok {
		t.Fatalf("expected simulated mailer when sending is disabled")
	}
	if _, ok := New(config.Config{EmailEnabled: true}).(noopMailer); !ok {
		t.Fatalf("expected noop mailer without an SMTP host")
	}
	if _, ok := New(config.Config{EmailEnabled: true, SMTPHost: "localhost", SMTPPort: 25}).(*smtpMailer); !ok {
		t.Fatalf("expected smtp mailer")
	}
}

func TestSendDoesNotRetryPermanentReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var conns int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(&conns, 1)
			w := bufio.NewWriter(conn)
			_, _ = w.WriteString("554 no service here\r\n")
			_ = w.Flush()
			_ = conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	mailer := &smtpMailer{cfg: config.Config{SMTPHost: "127.0.0.1", SMTPPort: port}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = mailer.Send(ctx, "hr@example.com", "e@example.com", "subject", "body")
	var reply *textproto.Error
	if !errors.As(err, &reply) || reply.Code != 554 {
		t.Fatalf("expected a 554 reply error, got %v", err)
	}
	if got := atomic.LoadInt32(&conns); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestSendSkipsBlankRecipient(t *testing.T) {
	mailer := &smtpMailer{cfg: config.Config{SMTPHost: "127.0.0.1", SMTPPort: 1}}
	if err := mailer.Send(context.Background(), "hr@example.com", "  ", "s", "b"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
