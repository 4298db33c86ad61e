// Package privilege reports whether the current process can perform service
// control operations that need administrative rights.
package privilege

import "github.com/PlumpMath/piso/internal/svcctl"

// elevatedVerbs lists the control verbs the service control manager refuses
// to non-administrators. queryex is readable by any user.
var elevatedVerbs = map[string]bool{
	svcctl.VerbCreate: true,
	svcctl.VerbStart:  true,
	svcctl.VerbStop:   true,
	svcctl.VerbDelete: true,
}

// RequiresElevation returns true if the control verb needs admin rights.
func RequiresElevation(verb string) bool {
	return elevatedVerbs[verb]
}

// Missing returns the verbs in verbs that need elevation the current process
// does not have. It returns nil when running elevated.
func Missing(verbs ...string) []string {
	if IsElevated() {
		return nil
	}
	var missing []string
	for _, v := range verbs {
		if RequiresElevation(v) {
			missing = append(missing, v)
		}
	}
	return missing
}
