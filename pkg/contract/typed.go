package contract

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const typedLogPrefix = "contract:typed"

// ValidateFunc checks a decoded value and returns a message per violation.
type ValidateFunc[T any] func(ctx any, value *T) []string

// Typed is a Contract that decodes the payload into T using its json tags.
type Typed[T any] struct {
	Value T

	validate   ValidateFunc[T]
	decodeErrs []string
	errs       []string
}

// NewTyped returns a Factory producing Typed[T] contracts. validate may be nil,
// in which case only decoding errors make the contract invalid.
func NewTyped[T any](validate ValidateFunc[T]) Factory {
	return func() Contract {
		return &Typed[T]{validate: validate}
	}
}

// Assign decodes payload into Value. Decoding errors are kept and reported by IsValid.
func (c *Typed[T]) Assign(payload any) {
	var value T
	c.decodeErrs = nil

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &value,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		c.decodeErrs = append(c.decodeErrs, fmt.Sprintf("%s - decoder: %v", typedLogPrefix, err))
		return
	}
	if err := dec.Decode(payload); err != nil {
		c.decodeErrs = append(c.decodeErrs, err.Error())
	}
	c.Value = value
}

// IsValid reports decoding errors and the result of the validate function.
func (c *Typed[T]) IsValid(ctx any) bool {
	c.errs = append([]string(nil), c.decodeErrs...)
	if len(c.errs) == 0 && c.validate != nil {
		c.errs = append(c.errs, c.validate(ctx, &c.Value)...)
	}
	return len(c.errs) == 0
}

// Errors returns the violations found by the last IsValid call.
func (c *Typed[T]) Errors() []string {
	return c.errs
}

// As extracts the decoded value from a contract created by NewTyped.
func As[T any](c Contract) (T, bool) {
	typed, ok := c.(*Typed[T])
	if !ok {
		var zero T
		return zero, false
	}
	return typed.Value, true
}
