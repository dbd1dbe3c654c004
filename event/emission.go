package event

import (
	"fmt"
	"reflect"

	"github.com/spf13/cast"
)

// Emission is one firing of an event: the sender identity, the payload and
// an optional broadcast topic. It is ephemeral; it exists only for the
// duration of the dispatch call and is shared read-only by all handlers.
type Emission struct {
	Event   *Event
	Sender  string
	Payload any
	Topic   string // empty means local dispatch only, no broadcast
}

// Should asserts the payload into the target pointer. target must be a
// non-nil pointer whose element type the payload is assignable to.
func (em *Emission) Should(target any) error {
	if target == nil {
		return fmt.Errorf("event: Should target must be a non-nil pointer")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("event: Should target must be a non-nil pointer, got %T", target)
	}
	if em.Payload == nil {
		return fmt.Errorf("event: payload is nil")
	}

	pv := reflect.ValueOf(em.Payload)
	if pv.Kind() == reflect.Ptr {
		if pv.IsNil() {
			return fmt.Errorf("event: payload is a nil pointer")
		}
		pv = pv.Elem()
	}

	elem := rv.Elem()
	if !pv.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("event: payload type %T is not assignable to %s", em.Payload, elem.Type())
	}
	elem.Set(pv)
	return nil
}

// PayloadString coerces the payload to a string ("" when not coercible).
func (em *Emission) PayloadString() string {
	return cast.ToString(em.Payload)
}

// PayloadInt coerces the payload to an int (0 when not coercible).
func (em *Emission) PayloadInt() int {
	return cast.ToInt(em.Payload)
}

// PayloadMap coerces the payload to a map[string]any (nil when not coercible).
func (em *Emission) PayloadMap() map[string]any {
	return cast.ToStringMap(em.Payload)
}
