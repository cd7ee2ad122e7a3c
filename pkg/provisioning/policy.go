package provisioning

// Decision is the outcome of reconciling a profile against the live device roster
type Decision struct {
	Regenerate bool
	// Missing lists enabled devices the profile does not include, sorted.
	// Devices the profile holds but that are no longer enabled also force
	// regeneration without appearing here.
	Missing []string
}

// Reconcile decides whether a profile must be regenerated. Profiles whose type
// does not use devices never drift. Otherwise any difference between the two
// sets, in either direction, triggers regeneration.
func Reconcile(profileType Type, profileDevices, live DeviceSet) Decision {
	if !profileType.UsesDevices() {
		return Decision{}
	}
	if live.Equal(profileDevices) {
		return Decision{}
	}
	return Decision{
		Regenerate: true,
		Missing:    live.Difference(profileDevices).Sorted(),
	}
}
