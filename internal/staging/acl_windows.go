//go:build windows

package staging

import (
	"fmt"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

// Entries created under a granted directory inherit its ACE.
const grantInherits = true

// grantFullControl merges an explicit GENERIC_ALL ACE for principal into the
// DACL of path, inherited by subdirectories and files.
func grantFullControl(path, principal string) error {
	sidString, err := winio.LookupSidByName(principal)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", principal, err)
	}
	sid, err := windows.StringToSid(sidString)
	if err != nil {
		return fmt.Errorf("parse SID %s: %w", sidString, err)
	}

	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return fmt.Errorf("read security info: %w", err)
	}
	current, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("read DACL: %w", err)
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.GRANT_ACCESS,
		Inheritance:       windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(sid),
		},
	}}, current)
	if err != nil {
		return fmt.Errorf("build DACL: %w", err)
	}

	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, windows.DACL_SECURITY_INFORMATION, nil, nil, acl, nil); err != nil {
		return fmt.Errorf("write DACL: %w", err)
	}
	return nil
}
