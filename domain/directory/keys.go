// Package directory provides the routing vocabulary shared by agents and the
// routing oracle: station keys, directory entries and the Oracle contract.
//
// A full key has the shape
//
//	DATATYPE.SERVICENAME.SERVICETYPE.http://host:port/PlaceName$expense
//
// where the trailing expense is optional.
package directory

import (
	"strconv"
	"strings"
)

// Key syntax.
const (
	Separator       = "."
	ClassSeparator  = "/"
	Dollar          = "$"
	DataIDSeparator = "::"
	Wildcard        = "*"

	// NumTuples is the number of dot separated parts of a complete key.
	NumTuples = 4
)

// Routing costs.
const (
	// RemoteExpenseOverhead is added to the expense of a station on
	// another host.
	RemoteExpenseOverhead = 1000

	DefaultCost    = 50
	DefaultQuality = 50
)

// SproutServiceType marks the history entry of a payload that has not yet
// been routed anywhere.
const SproutServiceType = "<SPROUT>"

// MakeKey joins the four key tuples.
func MakeKey(dataType, serviceName, serviceType, serviceLocation string) string {
	return dataType + Separator + serviceName + Separator + serviceType + Separator + serviceLocation
}

// SproutKey returns the history marker recorded for a newly created payload
// arriving at location.
func SproutKey(location string) string {
	return MakeKey(Wildcard, Wildcard, SproutServiceType, location) + Dollar + "0"
}

// ExpenseOf combines cost and quality into a single expense value.
func ExpenseOf(cost, quality int) int {
	return cost*100 + (100 - quality)
}

// DataID joins a form and a service type into an oracle lookup id.
func DataID(form, serviceType string) string {
	return form + DataIDSeparator + serviceType
}

// KeyDataID returns the data id of a key.
func KeyDataID(key string) string {
	return DataID(DataType(key), ServiceType(key))
}

// ServiceTypeFromDataID returns the service type half of a data id.
func ServiceTypeFromDataID(dataID string) string {
	if i := strings.Index(dataID, DataIDSeparator); i > -1 {
		return dataID[i+len(DataIDSeparator):]
	}
	return ""
}

// IsComplete reports whether key has all four tuples and a host.
func IsComplete(key string) bool {
	return numTuples(key) >= NumTuples && ServiceHost(key) != ""
}

// numTuples counts tuples, ignoring separators after the // of the location.
func numTuples(key string) int {
	count := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			count++
		}
		if i > 0 && key[i] == '/' && key[i-1] == '/' {
			break
		}
	}
	return count + 1
}

// separators returns the positions of the first three dots.
func separators(key string) (int, int, int) {
	first := strings.Index(key, Separator)
	if first < 0 {
		return -1, -1, -1
	}
	second := indexFrom(key, Separator, first+1)
	if second < 0 {
		return first, -1, -1
	}
	return first, second, indexFrom(key, Separator, second+1)
}

func indexFrom(s, sub string, from int) int {
	if from >= len(s) {
		return -1
	}
	i := strings.Index(s[from:], sub)
	if i < 0 {
		return -1
	}
	return i + from
}

// DataType returns the first tuple of key.
func DataType(key string) string {
	first, _, _ := separators(key)
	if first < 0 {
		return ""
	}
	return key[:first]
}

// ServiceName returns the second tuple of key.
func ServiceName(key string) string {
	first, second, _ := separators(key)
	if second < 0 {
		return ""
	}
	return key[first+1 : second]
}

// ServiceType returns the third tuple of key.
func ServiceType(key string) string {
	_, second, third := separators(key)
	if third < 0 {
		return ""
	}
	return key[second+1 : third]
}

// ServiceLocation returns the location tuple of key without the expense.
func ServiceLocation(key string) string {
	_, _, third := separators(key)
	if third < 0 {
		return ""
	}
	loc := key[third+1:]
	if i := strings.Index(loc, Dollar); i > 0 {
		loc = loc[:i]
	}
	return loc
}

// ServiceHost returns host:port of the location, or "".
func ServiceHost(key string) string {
	loc := ServiceLocation(key)
	ds := strings.Index(loc, "//")
	if ds < 0 {
		return ""
	}
	cs := indexFrom(loc, ClassSeparator, ds+2)
	if cs < 0 {
		return ""
	}
	return loc[ds+2 : cs]
}

// HostURL returns the location up to and including the last slash.
func HostURL(key string) string {
	loc := ServiceLocation(key)
	if i := strings.LastIndex(loc, ClassSeparator); i > -1 {
		return loc[:i+1]
	}
	return ""
}

// PlaceName returns the station simple name, the part of the location after
// the last slash.
func PlaceName(key string) string {
	loc := ServiceLocation(key)
	if i := strings.LastIndex(loc, ClassSeparator); i > -1 {
		return loc[i+1:]
	}
	return ""
}

// Expense returns the expense suffix of key, or -1 when there is none.
func Expense(key string) int {
	return ExpenseOr(key, -1)
}

// ExpenseOr returns the expense suffix of key, or dflt.
func ExpenseOr(key string, dflt int) int {
	i := strings.LastIndex(key, Dollar)
	if i < 0 {
		return dflt
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return dflt
	}
	return n
}

// AddExpense sets the expense suffix of key.
func AddExpense(key string, expense int) string {
	if ExpenseOr(key, -99) == expense {
		return key
	}
	if i := strings.LastIndex(key, Dollar); i > -1 {
		return key[:i+1] + strconv.Itoa(expense)
	}
	return key + Dollar + strconv.Itoa(expense)
}

// RemoveExpense strips the expense suffix from key.
func RemoveExpense(key string) string {
	if i := strings.Index(key, Dollar); i > -1 {
		return key[:i]
	}
	return key
}

// ReplaceDataType replaces the first tuple of key.
func ReplaceDataType(key, dataType string) string {
	first := strings.Index(key, Separator)
	if first < 0 {
		return dataType
	}
	return dataType + key[first:]
}

// IsLocalTo reports whether both keys live under the same host URL.
func IsLocalTo(a, b string) bool {
	return HostURL(a) == HostURL(b)
}

// Match reports whether s matches the glob pattern p, where * matches any
// run of characters and ? matches one character. Unlike path.Match, *
// crosses slashes, which every location contains.
func Match(s, p string) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if Match(s[i:], p) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
		}
		s, p = s[1:], p[1:]
	}
	return len(s) == 0
}
