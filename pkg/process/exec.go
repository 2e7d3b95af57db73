package process

import (
	"os"
	"syscall"
)

// Mockable for tests.
var forkExecFunc = syscall.ForkExec

// StartProcess forks and execs a child described by params.
//
// No goroutine waits on the child: slgreetd reaps every child centrally
// through Reap, so the caller learns about the exit from SIGCHLD.
// Failures inside the forked image before exec are reported back by the
// runtime and returned as an ExecError.
func StartProcess(params ExecParams) (*Child, error) {
	if len(params.Command) == 0 {
		return nil, &ExecError{Stage: StageDoExec, Err: os.ErrInvalid}
	}

	sys := &syscall.SysProcAttr{}
	files := []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd()}

	if params.TTY != nil {
		fd := params.TTY.Fd()
		files = []uintptr{fd, fd, fd}
		sys.Setsid = true
		sys.Setctty = true
		sys.Ctty = 0
	} else {
		// Own process group so Term/Kill reach the whole tree.
		sys.Setpgid = true
	}

	if params.Credential != nil {
		sys.Credential = &syscall.Credential{
			Uid:    params.Credential.UID,
			Gid:    params.Credential.GID,
			Groups: params.Credential.Groups,
		}
	}

	pid, err := forkExecFunc(params.Command[0], params.Command, &syscall.ProcAttr{
		Dir:   params.Dir,
		Env:   params.Env,
		Files: files,
		Sys:   sys,
	})
	if err != nil {
		stage := StageDoExec
		if err == syscall.EPERM && params.Credential != nil {
			stage = StageSetUIDGID
		}
		return nil, &ExecError{Stage: stage, Err: err}
	}

	return NewChild(pid, params.Role), nil
}
