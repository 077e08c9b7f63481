package directory

import "fmt"

// Entry is a ranked route to a station as returned by the routing oracle.
// Entries are values; WithDataType returns a modified copy.
type Entry struct {
	DataType        string `json:"data_type"`
	ServiceName     string `json:"service_name"`
	ServiceType     string `json:"service_type"`
	ServiceLocation string `json:"service_location"`
	Cost            int    `json:"cost"`
	Quality         int    `json:"quality"`
	Expense         int    `json:"expense"`
}

// NewEntry builds an entry from its tuples, computing the expense from cost
// and quality.
func NewEntry(dataType, serviceName, serviceType, location string, cost, quality int) *Entry {
	return &Entry{
		DataType:        dataType,
		ServiceName:     serviceName,
		ServiceType:     serviceType,
		ServiceLocation: location,
		Cost:            cost,
		Quality:         quality,
		Expense:         ExpenseOf(cost, quality),
	}
}

// ParseEntry builds an entry from a key with an optional expense suffix.
func ParseEntry(key string) (*Entry, error) {
	if numTuples(key) < NumTuples {
		return nil, fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	e := &Entry{
		DataType:        DataType(key),
		ServiceName:     ServiceName(key),
		ServiceType:     ServiceType(key),
		ServiceLocation: ServiceLocation(key),
		Cost:            DefaultCost,
		Quality:         DefaultQuality,
	}
	if exp := Expense(key); exp > -1 {
		e.Expense = exp
		e.Cost = exp / 100
		e.Quality = 100 - exp%100
	} else {
		e.Expense = ExpenseOf(e.Cost, e.Quality)
	}
	return e, nil
}

// Key returns the entry key without expense.
func (e *Entry) Key() string {
	return MakeKey(e.DataType, e.ServiceName, e.ServiceType, e.ServiceLocation)
}

// FullKey returns the entry key with its expense.
func (e *Entry) FullKey() string {
	return fmt.Sprintf("%s%s%d", e.Key(), Dollar, e.Expense)
}

// DataID returns dataType::serviceType for the entry.
func (e *Entry) DataID() string {
	return DataID(e.DataType, e.ServiceType)
}

// HostURL returns the part of the location up to the place name.
func (e *Entry) HostURL() string {
	return HostURL(e.Key())
}

// PlaceName returns the station simple name.
func (e *Entry) PlaceName() string {
	return PlaceName(e.Key())
}

// WithDataType returns a copy of the entry carrying dataType.
func (e *Entry) WithDataType(dataType string) *Entry {
	c := *e
	c.DataType = dataType
	return &c
}

// String implements fmt.Stringer.
func (e *Entry) String() string {
	return e.FullKey()
}
