package directory

import (
	"strings"

	"github.com/felixgeelhaar/itinerary/domain/directory"
)

// WildcardIDs returns the lookup ids tried for dataID, most specific first.
//
// For FOO-BAR(ASCII)-BAZ::ID the sequence is
//
//	FOO-BAR(ASCII)-BAZ::ID
//	FOO-BAR(*)-BAZ::ID
//	FOO-BAR(*)-*::ID
//	FOO-*::ID
//	*::ID
//
// Parenthesized parts are wildcarded right to left and stay wildcarded;
// dash delimited parts are then dropped right to left.
func WildcardIDs(dataID string) []string {
	dataType, serviceType, hasType := strings.Cut(dataID, directory.DataIDSeparator)
	join := func(dt string) string {
		if hasType {
			return directory.DataID(dt, serviceType)
		}
		return dt
	}

	ids := []string{join(dataType)}
	seen := map[string]struct{}{ids[0]: {}}
	add := func(dt string) {
		id := join(dt)
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	dt := dataType
	limit := len(dt)
	for {
		open := strings.LastIndexByte(dt[:limit], '(')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(dt[open:], ')')
		if closing < 0 {
			break
		}
		dt = dt[:open] + "(*)" + dt[open+closing+1:]
		add(dt)
		limit = open
	}

	for i := len(dt) - 1; i >= 0; i-- {
		if dt[i] == '-' {
			add(dt[:i] + "-*")
		}
	}
	add(directory.Wildcard)
	return ids
}
