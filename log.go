package matroska

import "github.com/sirupsen/logrus"

// log.go carries the package's logging conventions (§4.H): soft
// diagnostics go through *ParseContext.warn, which logs the structured
// fields its caller passes. Element-scoped warnings pass withElement's
// byte offset, element identifier and schema path so the warning is
// traceable back to the exact spot in the file that triggered it, the same
// structured-field discipline the wider example corpus uses for its own
// operational logging.

// withElement builds the structured-field set attached to every
// element-scoped warning.
func withElement(e *Element) logrus.Fields {
	if e == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{
		"offset": e.Start,
		"id":     e.ID,
		"path":   e.Path(),
	}
}
