package usecases

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/interfaces"
)

// staffLookup is the slice of Persistence the classifier needs.
type staffLookup interface {
	FindStaffByPhone(ctx context.Context, tenantID, phoneSuffix string) (*entities.StaffRecord, error)
}

var _ staffLookup = interfaces.Persistence(nil)

type SenderClassifier struct {
	staff staffLookup
}

func NewSenderClassifier(staff staffLookup) *SenderClassifier {
	return &SenderClassifier{staff: staff}
}

// PhoneSuffix returns the last 10 digits of phone, so 0812..., 62812... and +62 812... compare equal.
func PhoneSuffix(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return string(digits)
}

// Classify assigns the sender role. A failed lookup yields RoleCustomer together
// with a *ClassificationWarning; callers log it and continue.
func (c *SenderClassifier) Classify(ctx context.Context, tenantID, phone string) (entities.SenderRole, error) {
	rec, err := c.staff.FindStaffByPhone(ctx, tenantID, PhoneSuffix(phone))
	if err != nil {
		return entities.RoleCustomer, &entities.ClassificationWarning{Phone: phone, Err: err}
	}
	role := RoleForStaff(rec)
	log.Debug().Str("tenant", tenantID).Str("phone", phone).Str("role", string(role)).Msg("Sender classified")
	return role, nil
}

// RoleForStaff maps a staff record to a role. Missing or inactive records are customers.
func RoleForStaff(rec *entities.StaffRecord) entities.SenderRole {
	if rec == nil || rec.Status != entities.StaffActive {
		return entities.RoleCustomer
	}
	switch strings.ToLower(rec.Role) {
	case "owner", "admin":
		return entities.RoleOperator
	default:
		return entities.RoleStaff
	}
}
