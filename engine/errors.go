package engine

import "errors"

// Predefined errors
var (
	// ErrUnsupported is returned for query features the engine cannot evaluate
	ErrUnsupported = errors.New("tablequery engine: unsupported query feature")

	// ErrUnknownFunction is returned when a query calls a function the engine does not know
	ErrUnknownFunction = errors.New("tablequery engine: unknown function")

	// ErrArity is returned when a function is called with the wrong number of arguments
	ErrArity = errors.New("tablequery engine: wrong number of arguments")

	// ErrBindScope is returned when BIND assigns a variable that is already in scope
	ErrBindScope = errors.New("tablequery engine: BIND variable already in scope")

	// ErrQueryType is returned when a query is evaluated in the wrong form
	ErrQueryType = errors.New("tablequery engine: wrong query form")
)
