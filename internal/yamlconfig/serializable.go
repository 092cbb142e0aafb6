package yamlconfig

import (
	"fmt"
	"sync"
)

// TypeKey is the mapping key that marks a serialized typed object.
const TypeKey = "=="

// Serializable is implemented by values stored in a config as a typed
// object. The written mapping carries TypeKey set to SerializedType.
type Serializable interface {
	SerializedType() string
	Serialize() map[string]any
}

// Deserializer rebuilds a typed object from its serialized mapping. The
// TypeKey entry has already been removed from the map.
type Deserializer func(map[string]any) (any, error)

var (
	typesMu sync.RWMutex
	types   = map[string]Deserializer{}
)

// RegisterType makes typed objects named name loadable.
//
// Precondition: name must be non-empty and not already registered.
func RegisterType(name string, fn Deserializer) {
	typesMu.Lock()
	defer typesMu.Unlock()
	if name == "" || fn == nil {
		panic("yamlconfig.RegisterType: name and deserializer must be set")
	}
	if _, dup := types[name]; dup {
		panic(fmt.Sprintf("yamlconfig.RegisterType: type %q registered twice", name))
	}
	types[name] = fn
}

func deserialize(m map[string]any) (any, error) {
	name, _ := m[TypeKey].(string)
	typesMu.RLock()
	fn, ok := types[name]
	typesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	fields := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != TypeKey {
			fields[k] = v
		}
	}
	v, err := fn(fields)
	if err != nil {
		return nil, fmt.Errorf("deserializing %q: %w", name, err)
	}
	return v, nil
}
