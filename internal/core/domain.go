package core

import (
	"strings"
	"time"
)

const (
	OpIncome   OperationKind = "income"
	OpExpense  OperationKind = "expense"
	OpTransfer OperationKind = "transfer"
	OpGoal     OperationKind = "goal"
)

const (
	CategoryIncome  CategoryKind = "income"
	CategoryExpense CategoryKind = "expense"
	CategoryBoth    CategoryKind = "both"
)

type (
	OperationKind string

	CategoryKind string

	// Money is an amount in the budget's base unit, stored as integer cents.
	Money struct {
		Cents int64 `json:"cents"`
	}

	// Budget scopes all profiles/categories/goals/operations for one group
	// of users. Membership is a uid set; the join code is a short shareable
	// alias for the budget id.
	Budget struct {
		ID       string          `json:"-"`
		Owner    string          `json:"owner"`
		Code     string          `json:"code"`
		Currency string          `json:"currency"`
		Members  map[string]bool `json:"members"`
	}

	// Profile is a named participant inside a budget, optionally linked to
	// an authenticated user. An unset UserID means the profile is unclaimed.
	Profile struct {
		ID         string     `json:"-"`
		Name       string     `json:"name"`
		UserID     string     `json:"userId,omitempty"`
		Online     bool       `json:"online"`
		LastSeen   *time.Time `json:"lastSeen,omitempty"`
		LastLogin  *time.Time `json:"lastLogin,omitempty"`
		DeviceType string     `json:"deviceType,omitempty"`
	}

	Category struct {
		ID    string       `json:"-"`
		Name  string       `json:"name"`
		Emoji string       `json:"emoji,omitempty"`
		Kind  CategoryKind `json:"type"`
		Limit Money        `json:"limit"` // 0 = unset
	}

	Goal struct {
		ID       string `json:"-"`
		Name     string `json:"name"`
		Emoji    string `json:"emoji,omitempty"`
		Target   Money  `json:"target"`
		Deadline string `json:"deadline,omitempty"` // ISO date, optional
	}

	// Operation is one immutable ledger entry. Kind decides which reference
	// fields are meaningful; Amount is always positive, direction is implied
	// by Kind.
	Operation struct {
		ID        string        `json:"-"`
		Kind      OperationKind `json:"type"`
		Amount    Money         `json:"amount"`
		Date      time.Time     `json:"date"`
		Note      string        `json:"note,omitempty"`
		CreatedBy string        `json:"createdBy,omitempty"`
		CreatedAt time.Time     `json:"-"` // server-assigned

		ProfileID     string `json:"profileId,omitempty"`
		CategoryID    string `json:"categoryId,omitempty"`
		GoalID        string `json:"goalId,omitempty"`
		FromProfileID string `json:"fromProfileId,omitempty"`
		ToProfileID   string `json:"toProfileId,omitempty"`
	}
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (k OperationKind) Valid() bool {
	switch k {
	case OpIncome, OpExpense, OpTransfer, OpGoal:
		return true
	default:
		return false
	}
}

func (k CategoryKind) Valid() bool {
	switch k {
	case CategoryIncome, CategoryExpense, CategoryBoth:
		return true
	default:
		return false
	}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Kind.Valid() {
		return ErrInvalidCategoryKind
	}
	if c.Limit.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	return g.Target.Validate()
}

// Validate checks the amount and the reference fields required by the
// operation kind. Referential integrity against live profiles/categories
// is intentionally not checked here; the aggregation layer ignores unknown
// references instead.
func (o Operation) Validate() error {
	if err := o.Amount.Validate(); err != nil {
		return err
	}
	switch o.Kind {
	case OpIncome:
		if o.ProfileID == "" {
			return ErrMissingProfile
		}
	case OpExpense:
		if o.ProfileID == "" {
			return ErrMissingProfile
		}
		if o.CategoryID == "" {
			return ErrMissingCategory
		}
	case OpGoal:
		if o.ProfileID == "" {
			return ErrMissingProfile
		}
		if o.GoalID == "" {
			return ErrMissingGoal
		}
	case OpTransfer:
		if o.FromProfileID == "" || o.ToProfileID == "" {
			return ErrMissingProfile
		}
		if o.FromProfileID == o.ToProfileID {
			return ErrSelfTransfer
		}
	default:
		return ErrInvalidOperationKind
	}
	return nil
}
