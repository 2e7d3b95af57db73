// slgreetctl talks to slgreetd over its request socket. It doubles as a
// minimal text-mode greeter.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sunlightlinux/slgreet/pkg/ipc"
	"github.com/sunlightlinux/slgreet/pkg/shutdown"
)

const version = "0.1.0"

// stdin is shared so that buffered input survives between prompts.
var stdin = bufio.NewReader(os.Stdin)

func main() {
	var (
		socketPath  string
		showVersion bool
	)
	global := pflag.NewFlagSet("slgreetctl", pflag.ExitOnError)
	global.SetInterspersed(false)
	global.StringVarP(&socketPath, "socket-path", "s", "", "request socket path (default $"+ipc.EnvSocket+" or "+ipc.DefaultSocketPath+")")
	global.BoolVar(&showVersion, "version", false, "show version and exit")
	global.Usage = printUsage
	global.Parse(os.Args[1:])

	if showVersion {
		fmt.Printf("slgreetctl version %s\n", version)
		os.Exit(0)
	}

	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	if socketPath == "" {
		socketPath = ipc.SocketFromEnv()
	}

	command, cmdArgs := args[0], args[1:]

	c, err := ipc.Dial(socketPath)
	if err != nil {
		fatal("Failed to connect to slgreetd at %s: %v", socketPath, err)
	}
	defer c.Close()

	switch command {
	case "version":
		err = cmdVersion(c)
	case "greet":
		err = c.Greet()
	case "login":
		err = cmdLogin(c, cmdArgs)
	case "shutdown":
		name := "poweroff"
		if len(cmdArgs) > 0 {
			name = cmdArgs[0]
		}
		err = cmdShutdown(c, name)
	case "greeter":
		err = cmdGreeter(c, cmdArgs)
	default:
		c.Close()
		fatal("Unknown command: %s", command)
	}

	if err != nil {
		c.Close()
		fatal("Error: %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: slgreetctl [options] <command> [args...]

Options:
  --socket-path, -s PATH   Request socket path
  --version                Show version

Commands:
  version                  Show the daemon's protocol version
  greet                    Start the greeter
  login [--cmd C] [--vt N] [-e K=V]... USER [CMD...]
                           Replace the greeter with a session for USER
  shutdown [poweroff|reboot|exit]
                           Shut down, reboot, or stop slgreetd
  greeter [options]        Run an interactive text greeter
`)
}

func cmdVersion(c *ipc.Client) error {
	v, err := c.Version()
	if err != nil {
		return err
	}
	fmt.Printf("slgreetctl version %s, protocol version %d\n", version, v)
	return nil
}

func cmdShutdown(c *ipc.Client, name string) error {
	action, err := shutdown.ParseAction(name)
	if err != nil {
		return err
	}
	return c.Shutdown(action)
}

func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "slgreetctl: "+format+"\n", args...)
	os.Exit(1)
}
