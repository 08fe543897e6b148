package eventapi

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Condition narrows a subscription, e.g. {"object_id": "..."}.
type Condition map[string]string

// ObjectCondition matches events about a single object.
func ObjectCondition(objectID string) Condition {
	return Condition{"object_id": objectID}
}

// ConnectionCondition matches events about a platform connection.
func ConnectionCondition(connectionID string) Condition {
	return Condition{"connection_id": connectionID}
}

// HostCondition matches events relevant to a host user.
func HostCondition(hostID string) Condition {
	return Condition{"host_id": hostID}
}

func (c Condition) String() string {
	keys := slices.Sorted(maps.Keys(c))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c[k])
	}
	return strings.Join(parts, ",")
}

// Subscription represents a subscription to an event type, optionally
// narrowed by a condition. It is also the payload of subscribe and
// unsubscribe frames.
type Subscription struct {
	Type      EventType `json:"type"`
	Condition Condition `json:"condition"`
}

// Equal reports whether s and other describe the same subscription. A nil
// and an empty condition are equal.
func (s Subscription) Equal(other Subscription) bool {
	return s.Type == other.Type && maps.Equal(s.Condition, other.Condition)
}

func (s Subscription) String() string {
	if len(s.Condition) == 0 {
		return string(s.Type)
	}
	return fmt.Sprintf("%s[%s]", s.Type, s.Condition)
}

// ParseSubscription parses the "type" or "type:key=value,key=value" form
// used on command lines and in config files.
func ParseSubscription(s string) (Subscription, error) {
	typ, rest, hasCondition := strings.Cut(s, ":")
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Subscription{}, fmt.Errorf("eventapi: empty subscription type in %q", s)
	}
	sub := Subscription{Type: EventType(typ)}
	if !hasCondition {
		return sub, nil
	}

	sub.Condition = Condition{}
	for _, pair := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Subscription{}, fmt.Errorf("eventapi: invalid condition %q in %q", pair, s)
		}
		sub.Condition[key] = strings.TrimSpace(value)
	}
	return sub, nil
}
