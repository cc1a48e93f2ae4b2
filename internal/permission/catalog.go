// Package permission defines the closed catalog of permission keys the
// authorization engine accepts. Keys outside the catalog are rejected at
// construction, never at point of use.
package permission

import (
	"errors"
	"sort"
	"strings"
)

// Key identifies a single grantable permission.
type Key string

const (
	BookingView       Key = "booking:view"
	BookingManage     Key = "booking:manage"
	BookingInviteable Key = "booking:inviteable"
	SettingsManage    Key = "settings:manage"
	RolesManage       Key = "roles:manage"
	MembersView       Key = "members:view"
	MembersManage     Key = "members:manage"
	DirectoryInternal Key = "directory:listed_internal"
	DirectoryPublic   Key = "directory:listed_public"
	AuditView         Key = "audit:view"
)

var ErrUnknownKey = errors.New("unknown_permission_key")

var catalog = map[Key]struct{}{
	BookingView:       {},
	BookingManage:     {},
	BookingInviteable: {},
	SettingsManage:    {},
	RolesManage:       {},
	MembersView:       {},
	MembersManage:     {},
	DirectoryInternal: {},
	DirectoryPublic:   {},
	AuditView:         {},
}

// Parse validates a raw string against the catalog.
func Parse(raw string) (Key, error) {
	key := Key(strings.TrimSpace(raw))
	if !key.Valid() {
		return "", ErrUnknownKey
	}
	return key, nil
}

// Valid reports whether the key belongs to the catalog.
func (k Key) Valid() bool {
	_, ok := catalog[k]
	return ok
}

func (k Key) String() string {
	return string(k)
}

// All returns every catalog key in stable order.
func All() []Key {
	keys := make([]Key, 0, len(catalog))
	for key := range catalog {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Set is an unordered collection of catalog keys.
type Set map[Key]struct{}

// NewSet builds a Set from keys, dropping any outside the catalog.
func NewSet(keys ...Key) Set {
	set := make(Set, len(keys))
	for _, key := range keys {
		if key.Valid() {
			set[key] = struct{}{}
		}
	}
	return set
}

// FullSet returns a Set containing the entire catalog.
func FullSet() Set {
	return NewSet(All()...)
}

func (s Set) Has(key Key) bool {
	_, ok := s[key]
	return ok
}

func (s Set) Add(key Key) {
	if key.Valid() {
		s[key] = struct{}{}
	}
}

func (s Set) Remove(key Key) {
	delete(s, key)
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for key := range s {
		out[key] = struct{}{}
	}
	return out
}

// Keys returns the members in stable order.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Strings returns the members in stable order as raw strings.
func (s Set) Strings() []string {
	keys := s.Keys()
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.String())
	}
	return out
}
