package transport

import (
	"fmt"
	"sort"
	"sync"
)

var (
	driversMu sync.Mutex
	drivers   = map[string]Dialer{}
)

// Register makes a transport driver available under a name. Drivers call
// this from an init function; registering the same name twice panics.
func Register(name string, dialer Dialer) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if dialer == nil {
		panic("transport: Register dialer is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = dialer
}

// Open returns the registered driver by name.
func Open(name string) (Dialer, error) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if dialer, ok := drivers[name]; ok {
		return dialer, nil
	}
	return nil, fmt.Errorf("transport: unknown driver %q (registered: %v)", name, driverNames())
}

func driverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
