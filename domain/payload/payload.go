// Package payload defines the unit of work routed between stations and an
// in-memory implementation of it.
package payload

import (
	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/history"
)

// Forms with routing meaning.
const (
	// FormError routes a payload to error handling stations.
	FormError = "ERROR"

	// FormDone ends routing. Any form starting with it is final.
	FormDone = "DONE"

	// FormUnknown is the form of a payload nothing has identified yet.
	FormUnknown = "UNKNOWN"
)

// ParamMoveErrors is set on a payload while a station processes it after
// failed relocations. Its value is the decimal move error count.
const ParamMoveErrors = "AGENT_MOVE_ERRORS"

// Payload is the routed unit of work. Index 0 of the form stack is the top.
type Payload interface {
	ID() string
	ShortName() string

	CurrentForm() string
	CurrentFormAt(i int) string
	CurrentFormSize() int
	AllCurrentForms() []string
	PushCurrentForm(form string)
	PopCurrentForm() string
	ReplaceCurrentForm(form string)
	PullFormToTop(form string) bool
	SearchCurrentForm(form string) int
	DeleteCurrentFormAt(i int)

	History() *history.History
	AppendHistory(key string, coordinated bool)
	LastPlaceVisited() (*directory.Entry, bool)
	BeforeStart() bool

	AddProcessingError(msg string)
	ProcessingError() string
	SetBroken(reason string)
	Broken() string

	SetParameter(key, value string)
	Parameter(key string) (string, bool)
	DeleteParameter(key string)
}
