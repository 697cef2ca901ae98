package errors

import (
	"errors"
	"fmt"
)

type ErrorDump struct {
	TopMessage  string `json:"top_message"`
	Code        Code   `json:"code,omitempty"`
	UserMessage string `json:"user_message,omitempty"`
	Details     any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`
}

// Dump flattens an error chain for diagnostics output.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
		d.UserMessage = te.UserMessage()
		if MetadataFor(te.Code()).DetailsAllowed {
			d.Details = te.Details()
		}
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	return d
}
