// Package provisioning models provisioning profiles: the profile type taxonomy,
// sets of authorized devices, the policy deciding when a profile has drifted from
// the live device roster, and parsing of .mobileprovision files.
//
// # Profile types
//
// Portal profile types are strings such as IOS_APP_DEVELOPMENT or
// MAC_CATALYST_APP_STORE. ParseType classifies them by suffix:
//
//	provisioning.ParseType("TVOS_APP_ADHOC") // AdHoc
//	provisioning.ParseType("IOS_APP_STORE").UsesDevices() // false
package provisioning
