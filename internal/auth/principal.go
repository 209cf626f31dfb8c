package auth

import (
	"errors"

	"example.com/snapevent/internal/models"
)

// ErrForbidden is returned when a principal acts on an event it does not own
var ErrForbidden = errors.New("forbidden")

// Principal is the verified caller of a protected operation
type Principal struct {
	UserID uint
	Role   string
}

// IsRoot reports whether the principal bypasses ownership checks
func (p Principal) IsRoot() bool {
	return p.Role == models.RoleRoot
}

// CanManage reports whether the principal may mutate the given event. Root
// manages everything, including orphaned events with no owner.
func (p Principal) CanManage(ev *models.Event) bool {
	if p.IsRoot() {
		return true
	}
	return ev.OwnerID != nil && *ev.OwnerID == p.UserID
}
