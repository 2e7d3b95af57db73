package ipc

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/sunlightlinux/slgreet/pkg/vt"
)

// Core Deterministic Encoding (RFC 8949 §4.2), so a given request always
// encodes to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ipc: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1024,
		MaxMapPairs:      1024,
	}.DecMode()
	if err != nil {
		panic("ipc: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// LoginRequest asks for a session to replace the greeter.
type LoginRequest struct {
	Username string            `cbor:"username"`
	Password []byte            `cbor:"password,omitempty"`
	Command  []string          `cbor:"command"`
	Env      map[string]string `cbor:"env,omitempty"`
	// VT is the terminal to start on; nil means the daemon's own.
	VT *int `cbor:"vt,omitempty"`
}

// Selection converts the requested VT.
func (r *LoginRequest) Selection() vt.Selection {
	if r.VT == nil {
		return vt.CurrentSelection()
	}
	return vt.Number(*r.VT)
}

// ShutdownRequest names a shutdown.Action.
type ShutdownRequest struct {
	Action string `cbor:"action"`
}

// ErrorReply is the payload of RplyError.
type ErrorReply struct {
	Kind        string `cbor:"kind"`
	Description string `cbor:"description"`
}
