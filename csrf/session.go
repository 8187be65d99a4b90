package csrf

import (
	"fmt"
	"reflect"
)

// Session is the key-value mapping of a single user session.
//
// The guard keeps only a reference to it for the duration of a request. Writes
// made through Set must be visible to whoever owns the session so they can be
// persisted once the request completes.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapSession adapts a plain map to Session. It holds the map by reference, so
// mutations are visible to the caller that owns the map.
type MapSession map[string]any

func (m MapSession) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MapSession) Set(key string, value any) {
	m[key] = value
}

// asSession checks that v can act as a session mapping.
//
// Params:
//   - v: a Session implementation, a map[string]any or a pointer to one.
//
// Returns:
//   - the adapted Session, or a *ConfigError when v is nil, a nil map or
//     pointer, or of any other type.
func asSession(v any) (Session, error) {
	switch s := v.(type) {
	case nil:
		return nil, &ConfigError{Field: "session", Reason: "session is nil"}
	case MapSession:
		if s == nil {
			return nil, &ConfigError{Field: "session", Reason: "session map is nil"}
		}
		return s, nil
	case Session:
		if isNilRef(s) {
			return nil, &ConfigError{Field: "session", Reason: fmt.Sprintf("%T is nil", v)}
		}
		return s, nil
	case map[string]any:
		if s == nil {
			return nil, &ConfigError{Field: "session", Reason: "session map is nil"}
		}
		return MapSession(s), nil
	case *map[string]any:
		if s == nil {
			return nil, &ConfigError{Field: "session", Reason: "session map pointer is nil"}
		}
		if *s == nil {
			*s = map[string]any{}
		}
		return MapSession(*s), nil
	default:
		return nil, &ConfigError{
			Field:  "session",
			Reason: fmt.Sprintf("%T is not a key-value mapping", v),
		}
	}
}

// isNilRef reports whether s wraps a nil map, pointer or similar reference,
// which would panic on the first Set.
func isNilRef(s Session) bool {
	rv := reflect.ValueOf(s)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
