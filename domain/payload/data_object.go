package payload

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/history"
)

// DataObject is the in-memory Payload. It is not safe for concurrent use.
type DataObject struct {
	id        string
	shortName string
	forms     []string
	history   *history.History
	errors    strings.Builder
	broken    string
	params    map[string]string
	data      []byte
}

// New creates a payload named shortName with forms pushed so the last one
// ends up on top.
func New(shortName string, data []byte, forms ...string) *DataObject {
	d := &DataObject{
		id:        uuid.New().String(),
		shortName: shortName,
		history:   history.New(),
		params:    make(map[string]string),
		data:      data,
	}
	for _, f := range forms {
		d.PushCurrentForm(f)
	}
	return d
}

// ID returns the unique payload id.
func (d *DataObject) ID() string { return d.id }

// ShortName returns the display name.
func (d *DataObject) ShortName() string { return d.shortName }

// Data returns the raw content.
func (d *DataObject) Data() []byte { return d.data }

// SetData replaces the raw content.
func (d *DataObject) SetData(b []byte) { d.data = b }

// CurrentForm returns the top form, or "".
func (d *DataObject) CurrentForm() string {
	return d.CurrentFormAt(0)
}

// CurrentFormAt returns the form at i, or "".
func (d *DataObject) CurrentFormAt(i int) string {
	if i < 0 || i >= len(d.forms) {
		return ""
	}
	return d.forms[i]
}

// CurrentFormSize returns the depth of the form stack.
func (d *DataObject) CurrentFormSize() int { return len(d.forms) }

// AllCurrentForms returns the stack top first.
func (d *DataObject) AllCurrentForms() []string {
	return slices.Clone(d.forms)
}

// PushCurrentForm puts form on top.
func (d *DataObject) PushCurrentForm(form string) {
	d.forms = slices.Insert(d.forms, 0, form)
}

// PopCurrentForm removes and returns the top form.
func (d *DataObject) PopCurrentForm() string {
	if len(d.forms) == 0 {
		return ""
	}
	top := d.forms[0]
	d.forms = d.forms[1:]
	return top
}

// ReplaceCurrentForm swaps the top form, pushing when the stack is empty.
func (d *DataObject) ReplaceCurrentForm(form string) {
	if len(d.forms) == 0 {
		d.forms = []string{form}
		return
	}
	d.forms[0] = form
}

// PullFormToTop moves an existing form to the top.
func (d *DataObject) PullFormToTop(form string) bool {
	i := d.SearchCurrentForm(form)
	if i < 0 {
		return false
	}
	if i > 0 {
		d.forms = slices.Delete(d.forms, i, i+1)
		d.forms = slices.Insert(d.forms, 0, form)
	}
	return true
}

// SearchCurrentForm returns the stack position of form, or -1.
func (d *DataObject) SearchCurrentForm(form string) int {
	return slices.Index(d.forms, form)
}

// DeleteCurrentFormAt removes the form at i.
func (d *DataObject) DeleteCurrentFormAt(i int) {
	if i < 0 || i >= len(d.forms) {
		return
	}
	d.forms = slices.Delete(d.forms, i, i+1)
}

// History returns the transform history.
func (d *DataObject) History() *history.History { return d.history }

// AppendHistory records a visited station key.
func (d *DataObject) AppendHistory(key string, coordinated bool) {
	if coordinated {
		d.history.AppendCoordinated(key)
		return
	}
	d.history.Append(key)
}

// LastPlaceVisited parses the last non-coordinated history key.
func (d *DataObject) LastPlaceVisited() (*directory.Entry, bool) {
	last, ok := d.history.LastVisit()
	if !ok {
		return nil, false
	}
	e, err := directory.ParseEntry(last.Key)
	if err != nil {
		return nil, false
	}
	return e, true
}

// BeforeStart reports whether the payload is yet to be routed.
func (d *DataObject) BeforeStart() bool {
	return d.history.BeforeStart()
}

// AddProcessingError appends a line to the processing error trail.
func (d *DataObject) AddProcessingError(msg string) {
	d.errors.WriteString(msg)
	d.errors.WriteByte('\n')
}

// ProcessingError returns the processing error trail.
func (d *DataObject) ProcessingError() string {
	return d.errors.String()
}

// SetBroken flags the payload as malformed.
func (d *DataObject) SetBroken(reason string) { d.broken = reason }

// Broken returns the broken reason, or "".
func (d *DataObject) Broken() string { return d.broken }

// SetParameter sets a metadata value.
func (d *DataObject) SetParameter(key, value string) { d.params[key] = value }

// Parameter returns a metadata value.
func (d *DataObject) Parameter(key string) (string, bool) {
	v, ok := d.params[key]
	return v, ok
}

// DeleteParameter removes a metadata value.
func (d *DataObject) DeleteParameter(key string) { delete(d.params, key) }

var _ Payload = (*DataObject)(nil)
