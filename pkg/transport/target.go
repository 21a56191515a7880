// Package transport selects and performs the network delivery of outbound packages:
// HTTP POST, HTTP GET, or a pluggable custom connection.
package transport

import (
	"errors"
	"fmt"
)

// Protocols understood by the Selector.
const (
	ProtocolHTTP   = "HTTP"
	ProtocolPOST   = "POST"
	ProtocolGET    = "GET"
	ProtocolCustom = "CUSTOM"
)

// Wire-level names shared with the backend.
const (
	HeaderCSRF      = "X-CSRF-TOKEN"
	ParamJSON       = "_json"
	FieldFileCount  = "file-count"
	fieldFilePrefix = "file_"
)

var (
	// ErrUnknownProtocol is reported when a package names a protocol the Selector cannot serve.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrNoConnection is reported when a CUSTOM send finds no active connection.
	ErrNoConnection = errors.New("no active connection")
)

// File is a binary attachment sent with a POST request.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Target holds the addressing of one outbound request.
type Target struct {
	Protocol string
	Host     string
	Path     string
	Port     int
	Files    []File
}

// URL builds the request URL. Port 80 (or an unset port) is omitted.
func (t Target) URL() string {
	if t.Port == 0 || t.Port == 80 {
		return t.Host + t.Path
	}
	return fmt.Sprintf("%s:%d%s", t.Host, t.Port, t.Path)
}
