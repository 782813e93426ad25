// Package route defines the named logical channels on which edit events
// are published and relayed. A route is a value type; its flattened key
// doubles as the transport event name.
package route

import (
	"fmt"
	"strings"
)

const Separator = "."

// Route is a flattened channel key. The zero value is invalid; construct
// with New or FromKey.
type Route struct {
	key string
}

func New(segments ...string) (Route, error) {
	if len(segments) == 0 {
		return Route{}, fmt.Errorf("route: no segments")
	}
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return Route{}, fmt.Errorf("route: empty segment")
		}
		if strings.Contains(s, Separator) {
			return Route{}, fmt.Errorf("route: segment %q contains separator", s)
		}
	}
	return Route{key: strings.Join(segments, Separator)}, nil
}

func FromKey(key string) (Route, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Route{}, fmt.Errorf("route: empty key")
	}
	return Route{key: key}, nil
}

// MustFromKey is for compile-time constant keys in wiring and tests.
func MustFromKey(key string) Route {
	r, err := FromKey(key)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Route) Key() string {
	return r.key
}

func (r Route) String() string {
	return r.key
}

func (r Route) IsZero() bool {
	return r.key == ""
}
