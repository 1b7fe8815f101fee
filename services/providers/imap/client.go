package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/tracing"
)

func init() {
	// envelope fields in legacy charsets are decoded instead of rejected
	imap.CharsetReader = charset.NewReaderLabel
}

// session is the part of an IMAP connection the adapter uses.
type session interface {
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type dialFunc func(ctx context.Context, creds *dto.Credentials) (session, error)

// connect dials and logs in. Dial failures are transport errors; a rejected
// login is an auth error.
func (a *Adapter) connect(ctx context.Context, creds *dto.Credentials) (session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ImapAdapter.connect")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)

	if creds == nil || creds.Server == "" || creds.Username == "" {
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, mailsync_errors.ErrMissingGrant)
	}
	port := creds.Port
	if port == 0 {
		if creds.UseTLS {
			port = 993
		} else {
			port = 143
		}
	}
	serverAddr := fmt.Sprintf("%s:%d", creds.Server, port)
	span.SetTag("server", serverAddr)
	span.SetTag("tls", creds.UseTLS)

	dialer := &net.Dialer{
		Timeout:   a.cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var c *client.Client
	var err error
	if creds.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: creds.Server})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport,
			errors.Wrapf(err, "failed to connect to %s", serverAddr))
	}

	c.Timeout = a.cfg.DialTimeout
	if err := c.Login(creds.Username, creds.Password); err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, mailsync_errors.NewProviderError(providerName, loginErrorKind(err),
			errors.Wrapf(err, "failed to login as %s", creds.Username))
	}
	c.Timeout = a.cfg.CommandTimeout

	a.logger.Debugf("imap connected to %s as %s", serverAddr, creds.Username)
	return c, nil
}

// withSession runs fn on a fresh session and logs out afterwards. A
// cancelled context tears the connection down so blocked commands return.
func (a *Adapter) withSession(ctx context.Context, creds *dto.Credentials, fn func(s session) error) error {
	s, err := a.dial(ctx, creds)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.Logout()
	})
	defer func() {
		if stop() {
			if err := s.Logout(); err != nil {
				a.logger.Debugf("imap logout: %v", err)
			}
		}
	}()

	if err := fn(s); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport,
				errors.Wrap(mailsync_errors.ErrConnectionTimeout, ctxErr.Error()))
		}
		return err
	}
	return nil
}

// loginErrorKind separates a refused LOGIN from a connection that broke while
// the command was in flight. go-imap reports the latter as a closed connection.
func loginErrorKind(err error) mailsync_errors.ProviderErrorKind {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		strings.HasPrefix(err.Error(), "imap: connection closed"):
		return mailsync_errors.KindTransport
	}
	return mailsync_errors.KindAuth
}

func transportError(err error, msg string) error {
	return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, errors.Wrap(err, msg))
}
