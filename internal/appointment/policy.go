package appointment

import (
	"strings"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
	PlanUltra   = "ultra"
)

// Entitlement is what a role and subscription plan allow.
type Entitlement struct {
	Plan                   string `json:"plan"`
	EmergencyConsultations bool   `json:"emergencyConsultations"`
	DiscountPercent        int    `json:"discountPercent"`
}

// EmergencyEntitlement maps a role and plan to emergency consultation
// access. Staff always have access; partners never do; patients depend on
// their plan.
func EmergencyEntitlement(role auth.Role, plan string) Entitlement {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		plan = PlanFree
	}
	e := Entitlement{Plan: plan}

	switch role {
	case auth.RoleAdmin, auth.RoleDoctor:
		e.EmergencyConsultations = true
	case auth.RolePatient:
		switch plan {
		case PlanBasic:
			e.EmergencyConsultations, e.DiscountPercent = true, 10
		case PlanPremium:
			e.EmergencyConsultations, e.DiscountPercent = true, 20
		case PlanUltra:
			e.EmergencyConsultations, e.DiscountPercent = true, 30
		}
	}
	return e
}

// Apply returns amount after the plan discount, in centavos.
func (e Entitlement) Apply(amount int64) int64 {
	if e.DiscountPercent <= 0 {
		return amount
	}
	return amount * int64(100-e.DiscountPercent) / 100
}
