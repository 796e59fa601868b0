package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold is the case-insensitive comparison key for names and emails. The
// database compares with the same function through db.FoldCollation, so a
// match in Go is a match in SQL for any script.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func sameName(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Identity is the caller a request is evaluated for.
type Identity struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
	Director   bool   `json:"director"`
	Locale     string `json:"locale,omitempty"`
}

// Key identifies an identity for per-employee records, preferring email.
func (i Identity) Key() string {
	if e := strings.ToLower(strings.TrimSpace(i.Email)); e != "" {
		return e
	}
	return strings.TrimSpace(i.Name)
}

// Scope is the resolved capability set of an identity.
type Scope struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Employee bool   `json:"is_employee"`
	Director bool   `json:"is_director"`
	CFO      bool   `json:"is_cfo"`
	Ops      bool   `json:"is_ops"`
}

// IsManager reports whether managerName names the scoped identity.
func (s Scope) IsManager(managerName string) bool {
	if s.Name == "" {
		return false
	}
	return sameName(managerName, s.Name)
}

// Owns reports whether an owner name/email pair belongs to the scoped identity.
func (s Scope) Owns(ownerName, ownerEmail string) bool {
	if s.Email != "" && sameName(ownerEmail, s.Email) {
		return true
	}
	return s.Name != "" && sameName(ownerName, s.Name)
}

const (
	StatusPending  = "Pending"
	StatusApproved = "Approved"
	StatusRejected = "Rejected"
)

// IsPending reports whether a status string counts as pending.
func IsPending(status string) bool {
	return strings.Contains(strings.ToLower(status), "pending")
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
