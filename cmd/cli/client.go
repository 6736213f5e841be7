package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// apiError is the server's error body.
type apiError struct {
	Status int               `json:"-"`
	Msg    string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (e *apiError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Msg)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Msg, strings.Join(parts, "; "))
}

type tokensResp struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

type userResp struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

type registerResp struct {
	User userResp `json:"user"`
	tokensResp
}

// client talks to the account API.
type client struct {
	base string
	hc   *http.Client
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev only
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func newClient(base, caPath string, insecure bool) (*client, error) {
	tc, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tc != nil {
		tr.TLSClientConfig = tc
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Transport: tr, Timeout: 30 * time.Second},
	}, nil
}

// do sends body as JSON and decodes a 2xx response into out (if non-nil).
func (c *client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(ae); err != nil || ae.Msg == "" {
			ae.Msg = http.StatusText(resp.StatusCode)
		}
		return ae
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) register(ctx context.Context, email, password, username, first, last string) (registerResp, error) {
	var out registerResp
	err := c.do(ctx, http.MethodPost, "/api/register", "", map[string]string{
		"email": email, "password": password,
		"username": username, "first_name": first, "last_name": last,
	}, &out)
	return out, err
}

func (c *client) login(ctx context.Context, email, password string) (tokensResp, error) {
	var out tokensResp
	err := c.do(ctx, http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (c *client) refresh(ctx context.Context, refresh string) (tokensResp, error) {
	var out tokensResp
	err := c.do(ctx, http.MethodPost, "/api/token/refresh", "", map[string]string{"refresh": refresh}, &out)
	return out, err
}

func (c *client) logout(ctx context.Context, refresh string) error {
	return c.do(ctx, http.MethodPost, "/api/logout", "", map[string]string{"refresh": refresh}, nil)
}

func (c *client) profile(ctx context.Context, access string) (userResp, error) {
	var out userResp
	err := c.do(ctx, http.MethodGet, "/api/profile", access, nil, &out)
	return out, err
}

func (c *client) changePassword(ctx context.Context, access, current, next string) error {
	return c.do(ctx, http.MethodPost, "/api/profile/password", access,
		map[string]string{"current_password": current, "new_password": next}, nil)
}
