package bus

import "errors"

// Registration and subscription errors surfaced synchronously to callers.
var (
	ErrTypeAlreadyRegistered = errors.New("message type already registered")
	ErrTypeNotRegistered     = errors.New("message type not registered")
	ErrHandlerInterface      = errors.New("handler does not implement the required operations")
	ErrInvalidTypeName       = errors.New("invalid message type name")
	ErrCallbackInvalid       = errors.New("callback is not callable")
	ErrBrokerShutDown        = errors.New("broker has been shut down")
)

const maxTypeNameLen = 64

// validateTypeName enforces the MessageType contract: non-empty ASCII, at
// most 64 characters.
func validateTypeName(t MessageType) error {
	if len(t) == 0 || len(t) > maxTypeNameLen {
		return ErrInvalidTypeName
	}
	for i := 0; i < len(t); i++ {
		if t[i] > 127 {
			return ErrInvalidTypeName
		}
	}
	return nil
}
