// Package vt controls Linux virtual terminals: switching the display mode
// between text and graphics and activating a given VT.
package vt

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl requests from <linux/kd.h> and <linux/vt.h>.
const (
	kdSetMode    = 0x4B3A
	kdText       = 0x00
	kdGraphics   = 0x01
	vtOpenQry    = 0x5600
	vtGetState   = 0x5603
	vtActivate   = 0x5606
	vtWaitActive = 0x5607
)

// DefaultConsole is the device used for VT-wide requests.
const DefaultConsole = "/dev/tty0"

// Mockable for tests.
var (
	openFunc = func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	}
	ioctlFunc    = unix.IoctlSetInt
	getStateFunc = func(fd int) (uint16, error) {
		var st struct{ active, signal, state uint16 }
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vtGetState, uintptr(unsafe.Pointer(&st)))
		if errno != 0 {
			return 0, errno
		}
		return st.active, nil
	}
	openQryFunc = func(fd int) (int, error) {
		return unix.IoctlGetInt(fd, vtOpenQry)
	}
)

// Mode is the display mode of the active VT.
type Mode int

const (
	// Text is the console mode the daemon restores whenever nothing is
	// left on the terminal.
	Text Mode = iota
	// Graphics is the mode a display server or graphical greeter puts the
	// VT in; such programs can link this package to set it.
	Graphics
)

func (m Mode) String() string {
	switch m {
	case Text:
		return "text"
	case Graphics:
		return "graphics"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Path returns the device node of VT n.
func Path(n int) string {
	return "/dev/tty" + strconv.Itoa(n)
}

// Controller issues VT requests through a console device.
type Controller struct {
	console string
}

// NewController returns a Controller using console, or DefaultConsole
// when console is empty.
func NewController(console string) *Controller {
	if console == "" {
		console = DefaultConsole
	}
	return &Controller{console: console}
}

func (c *Controller) withConsole(fn func(fd int) error) error {
	f, err := openFunc(c.console)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(int(f.Fd()))
}

// SetMode switches the active VT to text or graphics mode.
func (c *Controller) SetMode(m Mode) error {
	arg := kdText
	if m == Graphics {
		arg = kdGraphics
	}
	err := c.withConsole(func(fd int) error {
		return ioctlFunc(fd, kdSetMode, arg)
	})
	if err != nil {
		return fmt.Errorf("setting %s mode on %s: %w", m, c.console, err)
	}
	return nil
}

// Activate switches to VT n and waits until the switch has happened.
func (c *Controller) Activate(n int) error {
	err := c.withConsole(func(fd int) error {
		if err := ioctlFunc(fd, vtActivate, n); err != nil {
			return err
		}
		return ioctlFunc(fd, vtWaitActive, n)
	})
	if err != nil {
		return fmt.Errorf("activating VT %d: %w", n, err)
	}
	return nil
}

// Current returns the number of the active VT.
func (c *Controller) Current() (int, error) {
	var n uint16
	err := c.withConsole(func(fd int) error {
		var err error
		n, err = getStateFunc(fd)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("querying active VT: %w", err)
	}
	return int(n), nil
}

// Next returns the first VT not opened by any process.
func (c *Controller) Next() (int, error) {
	var n int
	err := c.withConsole(func(fd int) error {
		var err error
		n, err = openQryFunc(fd)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("querying free VT: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("no free VT available")
	}
	return n, nil
}

// Spec is a configured VT choice: a fixed number, the next free VT or the
// VT active at startup.
type Spec struct {
	kind   specKind
	number int
}

type specKind uint8

const (
	specNumber specKind = iota
	specNext
	specCurrent
)

// ParseSpec accepts a positive VT number, "next" or "current".
func ParseSpec(s string) (Spec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "next":
		return Spec{kind: specNext}, nil
	case "current":
		return Spec{kind: specCurrent}, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return Spec{}, fmt.Errorf("invalid VT %q: want a positive number, \"next\" or \"current\"", s)
	}
	return Spec{kind: specNumber, number: n}, nil
}

// Resolve turns the spec into a VT number.
func (s Spec) Resolve(c *Controller) (int, error) {
	switch s.kind {
	case specNext:
		return c.Next()
	case specCurrent:
		return c.Current()
	default:
		return s.number, nil
	}
}

func (s Spec) String() string {
	switch s.kind {
	case specNext:
		return "next"
	case specCurrent:
		return "current"
	default:
		return strconv.Itoa(s.number)
	}
}

// Selection is the terminal choice carried by a login request.
type Selection struct {
	explicit bool
	number   int
}

// CurrentSelection selects the daemon's configured VT.
func CurrentSelection() Selection { return Selection{} }

// Number selects VT n explicitly.
func Number(n int) Selection { return Selection{explicit: true, number: n} }

// Resolve returns the selected VT, or def for the current selection.
func (s Selection) Resolve(def int) int {
	if s.explicit {
		return s.number
	}
	return def
}

func (s Selection) String() string {
	if s.explicit {
		return strconv.Itoa(s.number)
	}
	return "current"
}
