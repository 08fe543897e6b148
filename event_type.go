package eventapi

import "strings"

// EventType names a subscribable event, e.g. "emote_set.update".
type EventType string

const (
	EventSystemAnnouncement EventType = "system.announcement"
	EventSystemAll          EventType = "system.*"

	EventEmoteCreate EventType = "emote.create"
	EventEmoteUpdate EventType = "emote.update"
	EventEmoteDelete EventType = "emote.delete"
	EventEmoteAll    EventType = "emote.*"

	EventEmoteSetCreate EventType = "emote_set.create"
	EventEmoteSetUpdate EventType = "emote_set.update"
	EventEmoteSetDelete EventType = "emote_set.delete"
	EventEmoteSetAll    EventType = "emote_set.*"

	EventUserCreate           EventType = "user.create"
	EventUserUpdate           EventType = "user.update"
	EventUserDelete           EventType = "user.delete"
	EventUserAddConnection    EventType = "user.add_connection"
	EventUserUpdateConnection EventType = "user.update_connection"
	EventUserDeleteConnection EventType = "user.delete_connection"
	EventUserAll              EventType = "user.*"

	EventCosmeticCreate EventType = "cosmetic.create"
	EventCosmeticUpdate EventType = "cosmetic.update"
	EventCosmeticDelete EventType = "cosmetic.delete"
	EventCosmeticAll    EventType = "cosmetic.*"

	EventEntitlementCreate EventType = "entitlement.create"
	EventEntitlementUpdate EventType = "entitlement.update"
	EventEntitlementDelete EventType = "entitlement.delete"
	EventEntitlementAll    EventType = "entitlement.*"
)

// Object returns the object part of the event type ("emote_set" for
// "emote_set.update").
func (t EventType) Object() string {
	object, _, _ := strings.Cut(string(t), ".")
	return object
}

// Wildcard reports whether t subscribes to every event of its object.
func (t EventType) Wildcard() bool {
	return strings.HasSuffix(string(t), ".*")
}

// Matches reports whether an incoming event of type other is covered by a
// subscription to t.
func (t EventType) Matches(other EventType) bool {
	if t == other {
		return true
	}
	return t.Wildcard() && t.Object() == other.Object()
}
