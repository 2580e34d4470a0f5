package appointment

import (
	"testing"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

func TestEmergencyEntitlement(t *testing.T) {
	cases := []struct {
		role     auth.Role
		plan     string
		allowed  bool
		discount int
	}{
		{auth.RoleAdmin, "", true, 0},
		{auth.RoleDoctor, "free", true, 0},
		{auth.RolePartner, "ultra", false, 0},
		{auth.RolePatient, "", false, 0},
		{auth.RolePatient, "free", false, 0},
		{auth.RolePatient, "basic", true, 10},
		{auth.RolePatient, "Premium", true, 20},
		{auth.RolePatient, " ultra ", true, 30},
		{auth.RolePatient, "platinum", false, 0},
	}
	for _, tc := range cases {
		got := EmergencyEntitlement(tc.role, tc.plan)
		if got.EmergencyConsultations != tc.allowed || got.DiscountPercent != tc.discount {
			t.Errorf("EmergencyEntitlement(%s, %q) = %+v, want allowed=%v discount=%d",
				tc.role, tc.plan, got, tc.allowed, tc.discount)
		}
	}
}

func TestEntitlementApply(t *testing.T) {
	if got := EmergencyEntitlement(auth.RolePatient, PlanBasic).Apply(15000); got != 13500 {
		t.Fatalf("basic = %d", got)
	}
	if got := EmergencyEntitlement(auth.RoleDoctor, "").Apply(15000); got != 15000 {
		t.Fatalf("doctor = %d", got)
	}
}
