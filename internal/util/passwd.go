package util

import (
	"bufio"
	"os"
	"strings"
)

// DefaultShell is used when the passwd entry has no shell.
const DefaultShell = "/bin/sh"

// PasswdPath is the account database read by LookupShell.
var PasswdPath = "/etc/passwd"

// LookupShell returns the login shell of user from the passwd file.
// os/user does not expose the shell field.
func LookupShell(user string) string {
	f, err := os.Open(PasswdPath)
	if err != nil {
		return DefaultShell
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 || fields[0] != user {
			continue
		}
		if fields[6] == "" {
			return DefaultShell
		}
		return fields[6]
	}
	return DefaultShell
}
