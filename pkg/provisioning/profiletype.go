package provisioning

import "strings"

// Type is the distribution kind of a provisioning profile
type Type int

const (
	Unknown Type = iota
	Development
	AdHoc
	AppStore
	InHouse
	Direct
)

var typeSuffixes = []struct {
	suffix string
	typ    Type
}{
	{"_APP_DEVELOPMENT", Development},
	{"_APP_ADHOC", AdHoc},
	{"_APP_STORE", AppStore},
	{"_APP_INHOUSE", InHouse},
	{"_APP_DIRECT", Direct},
}

// ParseType classifies a raw portal profile type such as IOS_APP_ADHOC.
// Strings without a known suffix are Unknown.
func ParseType(raw string) Type {
	for _, s := range typeSuffixes {
		if strings.HasSuffix(raw, s.suffix) {
			return s.typ
		}
	}
	return Unknown
}

// UsesDevices reports whether profiles of this type carry a device list.
// App Store and In-House profiles cannot be restricted to devices.
func (t Type) UsesDevices() bool {
	switch t {
	case AppStore, InHouse:
		return false
	default:
		return true
	}
}

func (t Type) String() string {
	switch t {
	case Development:
		return "development"
	case AdHoc:
		return "adHoc"
	case AppStore:
		return "appStore"
	case InHouse:
		return "inHouse"
	case Direct:
		return "direct"
	}
	return "unknown"
}
