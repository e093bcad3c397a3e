package roles

import (
	"fmt"
	"strings"
)

// Role is an actor's system-level role.
type Role string

const (
	Farmer         Role = "farmer"
	ProcessingUnit Role = "processing_unit"
	Shop           Role = "shop"
	Admin          Role = "admin"
)

// roleAliases maps every naming convention seen in historical data to the
// canonical role. Unrecognized variants are rejected, never passed through.
var roleAliases = map[string]Role{
	"farmer":          Farmer,
	"producer":        Farmer,
	"processing_unit": ProcessingUnit,
	"processingunit":  ProcessingUnit,
	"processor":       ProcessingUnit,
	"abbatoir":        ProcessingUnit,
	"abattoir":        ProcessingUnit,
	"shop":            Shop,
	"retailer":        Shop,
	"admin":           Admin,
	"administrator":   Admin,
}

// Parse normalizes a role string at the boundary.
func Parse(in string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(in))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", in)
}

func (r Role) String() string { return string(r) }

// MemberRole is a role within a processing unit or shop.
type MemberRole string

const (
	Owner          MemberRole = "owner"
	Manager        MemberRole = "manager"
	Worker         MemberRole = "worker"
	Supervisor     MemberRole = "supervisor"
	QualityControl MemberRole = "quality_control"
)

var memberRoleAliases = map[string]MemberRole{
	"owner":           Owner,
	"manager":         Manager,
	"worker":          Worker,
	"supervisor":      Supervisor,
	"quality_control": QualityControl,
	"qualitycontrol":  QualityControl,
	"qc":              QualityControl,
}

// ParseMember normalizes a membership role string.
func ParseMember(in string) (MemberRole, error) {
	key := strings.ToLower(strings.TrimSpace(in))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if r, ok := memberRoleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown member role %q", in)
}

func (r MemberRole) String() string { return string(r) }

// CanManageMembers reports whether the role may invite, suspend, remove
// members or review join requests.
func (r MemberRole) CanManageMembers() bool {
	return r == Owner || r == Manager
}
