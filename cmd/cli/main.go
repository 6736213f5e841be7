// Command ga is a CLI client for the account API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

var errLoginRequired = errors.New("no valid token (login required)")

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "goph-auth")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "goph-auth")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(t tokensResp) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: t.Access, RefreshToken: t.Refresh, ExpiresAt: t.ExpiresAt})
}

func loadToken() (tokenFile, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tokenFile{}, errLoginRequired
		}
		return tokenFile{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return tokenFile{}, err
	}
	if tf.AccessToken == "" && tf.RefreshToken == "" {
		return tokenFile{}, errLoginRequired
	}
	return tf, nil
}

func clearToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// accessToken returns a usable access token, rotating the refresh token
// when the saved access token has expired.
func accessToken(ctx context.Context, c *client) (string, error) {
	tf, err := loadToken()
	if err != nil {
		return "", err
	}
	if tf.AccessToken != "" && time.Now().Before(tf.ExpiresAt) {
		return tf.AccessToken, nil
	}
	if tf.RefreshToken == "" {
		return "", errLoginRequired
	}
	tok, err := c.refresh(ctx, tf.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errLoginRequired, err)
	}
	if err := saveToken(tok); err != nil {
		return "", err
	}
	return tok.Access, nil
}

// ---- utils ----

// prompter asks for secrets. A terminal gets no echo; anything else is read
// one line at a time.
type prompter struct {
	in  *os.File
	rd  *bufio.Reader
	out io.Writer
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{in: in, rd: bufio.NewReader(in), out: out}
}

func (p *prompter) password(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if term.IsTerminal(int(p.in.Fd())) {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		return string(b), err
	}
	line, err := p.rd.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `ga CLI
Usage:
  ga -addr URL [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register   -e <email> -u <username> [-first <name>] [-last <name>]   (prompts for password, saves tokens)
  login      -e <email>                    (prompts for password, saves tokens)
  profile
  refresh
  passwd                                   (prompts for current and new password)
  logout
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API.
func main() {
	// global flags
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := newClient(*addr, *caPath, *insecure)
	if err != nil {
		fail(err)
	}

	if err := run(ctx, c, newPrompter(os.Stdin, os.Stderr), cmd, flag.Args()[1:]); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, c *client, pr *prompter, cmd string, args []string) error {
	switch cmd {

	case "version":
		fmt.Printf("ga %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ContinueOnError)
		e := fs.String("e", "", "email")
		u := fs.String("u", "", "username")
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *e == "" || *u == "" {
			return errors.New("need -e and -u")
		}
		p, err := pr.password("Password: ")
		if err != nil {
			return err
		}

		resp, err := c.register(ctx, *e, p, *u, *first, *last)
		if err != nil {
			return err
		}
		if err := saveToken(resp.tokensResp); err != nil {
			return err
		}
		printJSON(resp.User)

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		e := fs.String("e", "", "email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *e == "" {
			return errors.New("need -e")
		}
		p, err := pr.password("Password: ")
		if err != nil {
			return err
		}

		tok, err := c.login(ctx, *e, p)
		if err != nil {
			return err
		}
		if err := saveToken(tok); err != nil {
			return err
		}
		fmt.Println("ok")

	case "profile":
		access, err := accessToken(ctx, c)
		if err != nil {
			return err
		}
		u, err := c.profile(ctx, access)
		if err != nil {
			return err
		}
		printJSON(u)

	case "refresh":
		tf, err := loadToken()
		if err != nil {
			return err
		}
		tok, err := c.refresh(ctx, tf.RefreshToken)
		if err != nil {
			return err
		}
		if err := saveToken(tok); err != nil {
			return err
		}
		fmt.Println("ok")

	case "passwd":
		access, err := accessToken(ctx, c)
		if err != nil {
			return err
		}
		cur, err := pr.password("Current password: ")
		if err != nil {
			return err
		}
		next, err := pr.password("New password: ")
		if err != nil {
			return err
		}
		if err := c.changePassword(ctx, access, cur, next); err != nil {
			return err
		}
		// every session was revoked server-side
		if err := clearToken(); err != nil {
			return err
		}
		fmt.Println("ok (login again)")

	case "logout":
		tf, err := loadToken()
		if err != nil {
			return err
		}
		if err := c.logout(ctx, tf.RefreshToken); err != nil {
			return err
		}
		if err := clearToken(); err != nil {
			return err
		}
		fmt.Println("ok")

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
