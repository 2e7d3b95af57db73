// Package process implements process launching, signalling and reaping for
// slgreetd.
package process

import (
	"fmt"
	"os"
)

// ExecStage identifies the stage at which process setup failed.
type ExecStage uint8

const (
	StageLookupUser ExecStage = iota
	StageAuthenticate
	StageSetupTTY
	StageActivateVT
	StageSetUIDGID
	StageDoExec
)

func (s ExecStage) String() string {
	descriptions := []string{
		"looking up user",
		"authenticating",
		"setting up terminal",
		"activating virtual terminal",
		"setting user/group ID",
		"executing command",
	}
	if int(s) < len(descriptions) {
		return descriptions[s]
	}
	return fmt.Sprintf("ExecStage(%d)", s)
}

// ExecError represents a failure during child process setup or exec.
type ExecError struct {
	Stage ExecStage
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed while %s: %v", e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Credential identifies the user a child runs as.
type Credential struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

// ExecParams holds the parameters for starting a child process.
type ExecParams struct {
	// Role tags the child in logs ("greeter", "login", "shutdown").
	Role string

	// Command is the program path followed by its arguments.
	Command []string

	// Dir is the working directory. Empty inherits ours.
	Dir string

	// Env is the complete environment (key=value); nothing is inherited.
	Env []string

	// Credential switches uid/gid/groups before exec when non-nil.
	Credential *Credential

	// TTY becomes stdin/stdout/stderr and the controlling terminal of a
	// new session. When nil the child shares our stdio.
	TTY *os.File
}
