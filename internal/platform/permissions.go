package platform

// Permissions is a tri-state permission set: nil leaves the flag unset
// (inherited), true allows and false denies.
type Permissions struct {
	View           *bool
	Send           *bool
	ReadHistory    *bool
	AttachFiles    *bool
	ManageMessages *bool
	ManageChannels *bool
}

func Allow() *bool { v := true; return &v }
func Deny() *bool  { v := false; return &v }

func (p Permissions) Equal(o Permissions) bool {
	return sameFlag(p.View, o.View) &&
		sameFlag(p.Send, o.Send) &&
		sameFlag(p.ReadHistory, o.ReadHistory) &&
		sameFlag(p.AttachFiles, o.AttachFiles) &&
		sameFlag(p.ManageMessages, o.ManageMessages) &&
		sameFlag(p.ManageChannels, o.ManageChannels)
}

// CanView reports whether the overwrite explicitly allows viewing.
func (p Permissions) CanView() bool {
	return p.View != nil && *p.View
}

func sameFlag(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
