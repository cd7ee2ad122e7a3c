package provisioning

import "sort"

// DeviceSet is a set of portal device ids (not UDIDs)
type DeviceSet map[string]struct{}

// NewDeviceSet builds a set from ids, dropping duplicates
func NewDeviceSet(ids ...string) DeviceSet {
	s := make(DeviceSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id
func (s DeviceSet) Add(id string) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set
func (s DeviceSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Equal reports whether both sets hold exactly the same ids
func (s DeviceSet) Equal(other DeviceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Difference returns the ids in s that are not in other
func (s DeviceSet) Difference(other DeviceSet) DeviceSet {
	diff := DeviceSet{}
	for id := range s {
		if !other.Contains(id) {
			diff.Add(id)
		}
	}
	return diff
}

// Sorted returns the ids in ascending order
func (s DeviceSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
