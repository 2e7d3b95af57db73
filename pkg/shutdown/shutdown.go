// Package shutdown maps the shutdown actions a greeter may request onto
// the system commands that carry them out.
package shutdown

import (
	"fmt"
	"strings"

	"github.com/sunlightlinux/slgreet/pkg/process"
)

// Action is a requested shutdown behaviour.
type Action uint8

const (
	Poweroff Action = iota
	Reboot
	// Exit stops slgreetd itself; no system command is involved.
	Exit
)

func (a Action) String() string {
	switch a {
	case Poweroff:
		return "poweroff"
	case Reboot:
		return "reboot"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "poweroff", "power-off":
		return Poweroff, nil
	case "reboot":
		return Reboot, nil
	case "exit":
		return Exit, nil
	default:
		return 0, fmt.Errorf("unknown shutdown action: %s", s)
	}
}

// Command returns the shell command for a, or "" for Exit.
func (a Action) Command() string {
	switch a {
	case Poweroff:
		return "poweroff"
	case Reboot:
		return "reboot"
	default:
		return ""
	}
}

// Mockable for tests.
var startFunc = process.StartProcess

// commandPath is the PATH for shutdown commands; they live in sbin.
const commandPath = "PATH=/usr/local/sbin:/usr/sbin:/sbin:/usr/local/bin:/usr/bin:/bin"

// Spawn runs the command for a in a child process and returns without
// waiting. The child is later reaped as an unsupervised pid.
func Spawn(a Action) (int, error) {
	cmd := a.Command()
	if cmd == "" {
		return 0, fmt.Errorf("shutdown action %s has no command", a)
	}
	child, err := startFunc(process.ExecParams{
		Role:    "shutdown",
		Command: []string{"/bin/sh", "-c", cmd},
		Env:     []string{commandPath},
	})
	if err != nil {
		return 0, err
	}
	return child.PID(), nil
}
