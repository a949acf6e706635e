// Package failfast panics on programmer errors detected while wiring components.
// Runtime failures are returned as errors, never raised through this package.
package failfast

import (
	"fmt"
	"reflect"
)

// If panics unless condition holds
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+message, args...))
	}
}

// NotNil panics if v is nil, including typed nil pointers, maps, funcs and interfaces
func NotNil(v interface{}, name string) {
	if isNil(v) {
		panic(fmt.Errorf("fail-fast: %s is nil", name))
	}
}

// NotEmpty panics if s is empty
func NotEmpty(s string, name string) {
	if s == "" {
		panic(fmt.Errorf("fail-fast: %s is empty", name))
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Chan, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
