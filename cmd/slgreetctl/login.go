package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sunlightlinux/slgreet/internal/util"
	"github.com/sunlightlinux/slgreet/pkg/ipc"
	"github.com/sunlightlinux/slgreet/pkg/secret"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
)

// Mockable for tests.
var readPasswordFunc = readPassword

// readPassword prompts without echo on a terminal, or reads one line
// otherwise.
func readPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, err
		}
		pw := bytes.TrimRight(line, "\r\n")
		out := append([]byte(nil), pw...)
		secret.Scrub(line)
		return out, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return pw, err
}

type loginOptions struct {
	user    string
	command []string
	env     map[string]string
	vt      *int
}

// parseLoginArgs parses "login [--cmd C] [--vt N] [--env K=V]... USER
// [CMD...]". The command defaults to the user's login shell.
func parseLoginArgs(args []string) (*loginOptions, error) {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	vtNum := fs.Int("vt", 0, "VT to start the session on (default: the greeter's)")
	envs := fs.StringArrayP("env", "e", nil, "extra environment variable, KEY=VALUE")
	command := fs.String("cmd", "", "session command line, run through /bin/sh")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, errors.New("usage: slgreetctl login [--cmd C] [--vt N] [--env KEY=VALUE]... USER [CMD...]")
	}

	opts := &loginOptions{user: rest[0], env: make(map[string]string)}
	for _, e := range *envs {
		k, v, ok := util.ParseEnvAssignment(e)
		if !ok {
			return nil, fmt.Errorf("invalid environment assignment %q", e)
		}
		opts.env[k] = v
	}
	if fs.Changed("vt") {
		if *vtNum <= 0 {
			return nil, fmt.Errorf("invalid VT %d", *vtNum)
		}
		opts.vt = vtNum
	}

	opts.command = rest[1:]
	if *command != "" {
		if len(opts.command) > 0 {
			return nil, errors.New("--cmd and a positional command are mutually exclusive")
		}
		opts.command = []string{*command}
	}
	if len(opts.command) == 0 {
		opts.command = []string{util.LookupShell(opts.user)}
	}
	return opts, nil
}

func cmdLogin(c *ipc.Client, args []string) error {
	opts, err := parseLoginArgs(args)
	if err != nil {
		return err
	}
	pw, err := readPasswordFunc("Password: ")
	if err != nil {
		return err
	}
	return c.Login(&ipc.LoginRequest{
		Username: opts.user,
		Password: pw,
		Command:  opts.command,
		Env:      opts.env,
		VT:       opts.vt,
	})
}

// cmdGreeter prompts for credentials until a login is accepted. The
// daemon then stops this process and starts the session. The usernames
// "!poweroff" and "!reboot" request a shutdown instead.
func cmdGreeter(c *ipc.Client, args []string) error {
	fs := pflag.NewFlagSet("greeter", pflag.ContinueOnError)
	command := fs.String("cmd", "", "session command (default: the user's login shell)")
	attempts := fs.Int("attempts", 0, "give up after this many failed logins (0: never)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	for failures := 0; *attempts == 0 || failures < *attempts; {
		user, err := readLine(fmt.Sprintf("\n%s login: ", host))
		if err != nil {
			return err
		}
		user = strings.TrimSpace(user)
		switch user {
		case "":
			continue
		case "!poweroff", "!reboot":
			action, _ := shutdown.ParseAction(strings.TrimPrefix(user, "!"))
			if err := c.Shutdown(action); err != nil {
				fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
			}
			continue
		}

		pw, err := readPasswordFunc("Password: ")
		if err != nil {
			return err
		}
		cmd := []string{util.LookupShell(user)}
		if *command != "" {
			cmd = []string{*command}
		}

		err = c.Login(&ipc.LoginRequest{Username: user, Password: pw, Command: cmd})
		if err == nil {
			fmt.Fprintln(os.Stderr, "Starting session...")
			return nil
		}
		var re *ipc.ReplyError
		if !errors.As(err, &re) && !errors.Is(err, ipc.ErrBadRequest) {
			return err
		}
		fmt.Fprintf(os.Stderr, "Login incorrect: %v\n", err)
		failures++
	}
	return fmt.Errorf("giving up after %d failed logins", *attempts)
}
