// Package envelope builds the packages exchanged with the backend: one envelope per
// message, carrying a payload plus routing metadata, in one direction.
package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ikaru5/heimdall-controller/pkg/transport"
)

const logPrefix = "envelope:package"

// Direction distinguishes outbound from inbound packages.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionSend
	DirectionReceive
)

// Serializable payloads convert themselves into plain JSON data before sending.
type Serializable interface {
	ToPlainObject() map[string]any
}

// Defaults are the router-wide values used when a dispatch leaves a field empty.
type Defaults struct {
	Path             string
	Host             string
	Port             int
	Protocol         string
	CSRFToken        string
	HandleCSRF       bool
	DecorateReceiver func(string) string
}

// Environment is the router as seen by a package.
type Environment interface {
	Defaults() Defaults
	Transmit(ctx context.Context, body []byte, target transport.Target)
}

// Options override the defaults for a single outbound package.
type Options struct {
	Receiver  string
	Path      string
	Host      string
	Port      int
	Protocol  string
	CSRFToken string
	Files     []transport.File
	// Decorate applies the router's DecorateReceiver to Receiver.
	Decorate bool
}

// Package is an envelope. It is not modified after construction.
type Package struct {
	payload     any
	receiver    string
	files       []transport.File
	path        string
	host        string
	port        int
	protocol    string
	csrfToken   string
	priority    float64
	hasPriority bool
	direction   Direction

	handleCSRF bool
	env        Environment
}

type outbound struct {
	Payload   any    `json:"payload"`
	Receiver  string `json:"receiver,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
}

// BuildSend creates an outbound package. Fields missing from opts fall back to env.Defaults().
func BuildSend(payload any, opts Options, env Environment) *Package {
	d := env.Defaults()
	p := &Package{
		payload:    normalize(payload),
		receiver:   opts.Receiver,
		files:      opts.Files,
		path:       firstString(opts.Path, d.Path),
		host:       firstString(opts.Host, d.Host),
		port:       opts.Port,
		protocol:   firstString(opts.Protocol, d.Protocol),
		csrfToken:  firstString(opts.CSRFToken, d.CSRFToken),
		direction:  DirectionSend,
		handleCSRF: d.HandleCSRF,
		env:        env,
	}
	if p.port == 0 {
		p.port = d.Port
	}
	if opts.Decorate && p.receiver != "" && d.DecorateReceiver != nil {
		p.receiver = d.DecorateReceiver(p.receiver)
	}
	return p
}

// BuildReceive creates an inbound package from one decoded JSON message.
// Anything but a JSON object is logged and yields an inert package without receiver.
func BuildReceive(raw any, protocol string) *Package {
	p := &Package{
		payload:   map[string]any{},
		protocol:  protocol,
		direction: DirectionReceive,
	}

	msg, ok := raw.(map[string]any)
	if !ok {
		slog.Error(fmt.Sprintf("%s - Got invalid JSON: %v", logPrefix, raw))
		return p
	}

	p.receiver, _ = msg["receiver"].(string)
	p.csrfToken, _ = msg["csrf"].(string)
	p.payload = msg["payload"]
	p.priority, p.hasPriority = PriorityOf(msg)
	return p
}

// PriorityOf returns the numeric priority field of an inbound message, if any.
func PriorityOf(raw any) (float64, bool) {
	msg, ok := raw.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := msg["priority"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// SendOut serializes the package and hands it to the router's transport.
// It returns false, without any network call, for received packages.
func (p *Package) SendOut(ctx context.Context) bool {
	if p.direction == DirectionReceive {
		slog.Error(fmt.Sprintf("%s - Trying to send a received package!", logPrefix))
		return false
	}
	if p.env == nil {
		slog.Error(fmt.Sprintf("%s - package has no environment to send through", logPrefix))
		return false
	}

	body, err := p.JSON()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode package for %s: %v", logPrefix, p.receiver, err))
		return false
	}

	p.env.Transmit(ctx, body, transport.Target{
		Protocol: p.protocol,
		Host:     p.host,
		Path:     p.path,
		Port:     p.port,
		Files:    p.files,
	})
	return true
}

// JSON renders the outbound wire format. The CSRF token is only included when
// CSRF handling is enabled on the router.
func (p *Package) JSON() ([]byte, error) {
	out := outbound{Payload: p.payload, Receiver: p.receiver}
	if p.handleCSRF {
		out.CSRFToken = p.csrfToken
	}
	return json.Marshal(out)
}

// Accessors. A package is read-only once built.

func (p *Package) Payload() any { return p.payload }
func (p *Package) Receiver() string { return p.receiver }
func (p *Package) Files() []transport.File { return p.files }
func (p *Package) Path() string { return p.path }
func (p *Package) Host() string { return p.host }
func (p *Package) Port() int { return p.port }
func (p *Package) Protocol() string { return p.protocol }
func (p *Package) CSRFToken() string { return p.csrfToken }
func (p *Package) Direction() Direction { return p.direction }
func (p *Package) IsReceiving() bool { return p.direction == DirectionReceive }
func (p *Package) Priority() (float64, bool) { return p.priority, p.hasPriority }

func normalize(payload any) any {
	switch v := payload.(type) {
	case nil:
		return map[string]any{}
	case Serializable:
		return v.ToPlainObject()
	default:
		return v
	}
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
