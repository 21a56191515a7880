// Package contract defines the capability surface used to validate the payload
// of an inbound package before its handler runs.
//
// Validation is advisory. A contract adapts and checks the shape of a payload;
// it is not a trust boundary.
package contract

// Contract validates and adapts a received payload.
type Contract interface {
	// Assign populates the contract from a decoded JSON payload.
	Assign(payload any)
	// IsValid reports whether the assigned payload satisfies the contract.
	// ctx is the optional context declared on the action.
	IsValid(ctx any) bool
	// Errors returns the messages collected by the last IsValid call.
	Errors() []string
}

// Factory creates a fresh contract instance for every received package.
type Factory func() Contract
