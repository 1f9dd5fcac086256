package model

// Kind names an entity kind. The values match the keys used in push events.
type Kind string

// Entity kinds.
const (
	KindHome   Kind = "home"
	KindDevice Kind = "device"
	KindGroup  Kind = "group"
	KindClient Kind = "client"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}
