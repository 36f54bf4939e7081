// Package spacetrack is a client of the space-track.org catalog API.
//
// Every call runs in its own session: login, one or more queries, logout.
// Sessions are never shared between calls.
package spacetrack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	C "github.com/pmkol/tlesync/constant"
)

const (
	defaultBaseURL = "https://www.space-track.org"
	defaultTimeout = 30 * time.Second

	loginPath  = "/ajaxauth/login"
	logoutPath = "/ajaxauth/logout"

	jsonContentType = "application/json"

	// responses are bounded to keep a misbehaving server from exhausting memory.
	maxResponseSize = 256 << 20
)

var nopLogger = zap.NewNop()

// Proxy is an optional HTTP proxy. Port 0 keeps the scheme default.
type Proxy struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

func (p Proxy) url() *url.URL {
	if len(p.Host) == 0 {
		return nil
	}
	host := p.Host
	scheme := "http"
	if s, rest, ok := strings.Cut(host, "://"); ok {
		scheme, host = s, rest
	}
	if p.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: scheme, Host: host}
	if len(p.Login) > 0 {
		u.User = url.UserPassword(p.Login, p.Password)
	}
	return u
}

type Opts struct {
	BaseURL   string
	Identity  string
	Password  string
	Timeout   time.Duration
	UserAgent string
	Proxy     Proxy
	Logger    *zap.Logger

	// Transport overrides the HTTP transport built from Proxy.
	Transport http.RoundTripper
}

func (opts *Opts) Init() {
	if len(opts.BaseURL) == 0 {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if len(opts.UserAgent) == 0 {
		opts.UserAgent = "tlesync/" + C.Version
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
}

type Client struct {
	opts      Opts
	transport http.RoundTripper
}

func New(opts Opts) *Client {
	opts.Init()
	t := opts.Transport
	if t == nil {
		ht := http.DefaultTransport.(*http.Transport).Clone()
		if pu := opts.Proxy.url(); pu != nil {
			ht.Proxy = http.ProxyURL(pu)
		}
		ht.ResponseHeaderTimeout = opts.Timeout
		t = ht
	}
	return &Client{opts: opts, transport: t}
}

// Close releases idle connections.
func (c *Client) Close() error {
	if ht, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		ht.CloseIdleConnections()
	}
	return nil
}

type session struct {
	c  *Client
	hc *http.Client
}

// withSession logs in, calls fn and logs out. Logout runs exactly once after
// every login attempt and its error never replaces the result of fn.
func (c *Client) withSession(ctx context.Context, fn func(s *session) error) error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return err
	}
	s := &session{
		c:  c,
		hc: &http.Client{Transport: c.transport, Jar: jar, Timeout: c.opts.Timeout},
	}
	defer s.logout(ctx)

	if err := s.login(ctx); err != nil {
		return err
	}
	return fn(s)
}

func (s *session) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.c.opts.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.c.opts.UserAgent)
	return req, nil
}

func (s *session) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("identity", s.c.opts.Identity)
	form.Set("password", s.c.opts.Password)

	req, err := s.newRequest(ctx, http.MethodPost, loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := s.hc.Do(req)
	if err != nil {
		return &AuthError{Err: err}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseSize))

	if res.StatusCode != http.StatusOK {
		return &AuthError{StatusCode: res.StatusCode}
	}
	return nil
}

func (s *session) logout(ctx context.Context) {
	// The caller's ctx may already be done; logout still gets its own timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.opts.Timeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, logoutPath, nil)
	if err != nil {
		s.c.opts.Logger.Warn("space-track logout failed", zap.Error(err))
		return
	}
	res, err := s.hc.Do(req)
	if err != nil {
		s.c.opts.Logger.Warn("space-track logout failed", zap.Error(err))
		return
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		s.c.opts.Logger.Warn("space-track logout failed", zap.Int("status", res.StatusCode))
	}
}

// query GETs path and returns the JSON body.
func (s *session) query(ctx context.Context, path string) ([]byte, error) {
	u := s.c.opts.BaseURL + path
	req, err := s.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, &RequestError{URL: u, Err: err}
	}
	req.Header.Set("Accept", jsonContentType)

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, &RequestError{URL: u, Err: err}
	}
	defer res.Body.Close()

	ct := res.Header.Get("Content-Type")
	if res.StatusCode != http.StatusOK {
		return nil, &RequestError{URL: u, StatusCode: res.StatusCode, ContentType: ct}
	}
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != jsonContentType {
		return nil, &RequestError{URL: u, StatusCode: res.StatusCode, ContentType: ct}
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize+1))
	if err != nil {
		return nil, &RequestError{URL: u, StatusCode: res.StatusCode, ContentType: ct, Err: err}
	}
	if len(b) > maxResponseSize {
		return nil, &RequestError{URL: u, StatusCode: res.StatusCode, ContentType: ct, Err: errors.New("response too large")}
	}
	s.c.opts.Logger.Debug("space-track query", zap.String("url", u), zap.Int("bytes", len(b)))
	return b, nil
}

func joinIDs(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return sb.String()
}

func epochRange(start, end time.Time) string {
	return fmt.Sprintf("%s--%s", start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
}
