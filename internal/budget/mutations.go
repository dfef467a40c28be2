package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fambudget/internal/core"
	"fambudget/internal/docstore"
)

// CategoryPatch carries the fields of a category update; nil means leave
// the field as is.
type CategoryPatch struct {
	Name  *string
	Emoji *string
	Kind  *core.CategoryKind
	Limit *core.Money
}

// GoalPatch carries the fields of a goal update; nil means leave as is.
type GoalPatch struct {
	Name     *string
	Emoji    *string
	Target   *core.Money
	Deadline *string
}

// AddOperation validates and writes one ledger entry. The creator id and
// creation time are stamped here; a zero date defaults to now. Reference
// ids are not checked against live collections.
func (s *Store) AddOperation(ctx context.Context, op core.Operation) (string, error) {
	budgetID, err := s.requireActive()
	if err != nil {
		return "", err
	}
	user := s.auth.CurrentUser()
	if user == nil {
		return "", core.ErrAuthRequired
	}
	if err := op.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}

	op.CreatedBy = user.UID
	if op.Date.IsZero() {
		op.Date = time.Now()
	}
	fields, err := docstore.Encode(op)
	if err != nil {
		return "", fmt.Errorf("encode operation: %w", err)
	}
	id, err := s.remote.Add(ctx, operationsCollection(budgetID), fields)
	if err != nil {
		return "", fmt.Errorf("add operation: %w", err)
	}
	return id, nil
}

// DeleteOperation removes a ledger entry. Operations are never edited in
// place; correcting one means delete and recreate.
func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	if err := s.remote.Delete(ctx, operationsCollection(budgetID), id); err != nil {
		return fmt.Errorf("delete operation: %w", err)
	}
	return nil
}

func (s *Store) AddCategory(ctx context.Context, c core.Category) (string, error) {
	budgetID, err := s.requireActive()
	if err != nil {
		return "", err
	}
	if c.Emoji == "" {
		c.Emoji = "📂"
	}
	if c.Kind == "" {
		c.Kind = core.CategoryExpense
	}
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	fields, err := docstore.Encode(c)
	if err != nil {
		return "", fmt.Errorf("encode category: %w", err)
	}
	id, err := s.remote.Add(ctx, categoriesCollection(budgetID), fields)
	if err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyName)
		}
		fields["name"] = *patch.Name
	}
	if patch.Emoji != nil {
		fields["emoji"] = *patch.Emoji
	}
	if patch.Kind != nil {
		if !patch.Kind.Valid() {
			return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrInvalidCategoryKind)
		}
		fields["type"] = *patch.Kind
	}
	if patch.Limit != nil {
		if patch.Limit.Cents < 0 {
			return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrInvalidAmount)
		}
		fields["limit"] = map[string]any{"cents": patch.Limit.Cents}
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.remote.Update(ctx, categoriesCollection(budgetID), id, fields); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category without touching operations that
// reference it; the aggregation layer tolerates the dangling ids.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	if err := s.remote.Delete(ctx, categoriesCollection(budgetID), id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// SetCategoryLimit sets the monthly spending limit, zero meaning unset.
func (s *Store) SetCategoryLimit(ctx context.Context, id string, limit core.Money) error {
	if limit.Cents < 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrInvalidAmount)
	}
	return s.UpdateCategory(ctx, id, CategoryPatch{Limit: &limit})
}

func (s *Store) AddGoal(ctx context.Context, g core.Goal) (string, error) {
	budgetID, err := s.requireActive()
	if err != nil {
		return "", err
	}
	if g.Emoji == "" {
		g.Emoji = "🎯"
	}
	if err := g.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidInput, err)
	}
	fields, err := docstore.Encode(g)
	if err != nil {
		return "", fmt.Errorf("encode goal: %w", err)
	}
	id, err := s.remote.Add(ctx, goalsCollection(budgetID), fields)
	if err != nil {
		return "", fmt.Errorf("add goal: %w", err)
	}
	return id, nil
}

func (s *Store) EditGoal(ctx context.Context, id string, patch GoalPatch) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyName)
		}
		fields["name"] = *patch.Name
	}
	if patch.Emoji != nil {
		fields["emoji"] = *patch.Emoji
	}
	if patch.Target != nil {
		if patch.Target.Cents <= 0 {
			return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrInvalidAmount)
		}
		fields["target"] = map[string]any{"cents": patch.Target.Cents}
	}
	if patch.Deadline != nil {
		fields["deadline"] = *patch.Deadline
	}
	if len(fields) == 0 {
		return nil
	}
	if err := s.remote.Update(ctx, goalsCollection(budgetID), id, fields); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

// DeleteGoal removes a goal; contributions already recorded keep their
// goalId and are ignored by the aggregates from then on.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	if err := s.remote.Delete(ctx, goalsCollection(budgetID), id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// ContributeToGoal is sugar for AddOperation with the goal kind.
func (s *Store) ContributeToGoal(ctx context.Context, goalID, profileID string, amount core.Money, note string) (string, error) {
	return s.AddOperation(ctx, core.Operation{
		Kind:      core.OpGoal,
		GoalID:    goalID,
		ProfileID: profileID,
		Amount:    amount,
		Note:      note,
	})
}

// CurrentProfile returns the snapshot profile linked to the signed-in
// user, nil when there is none yet.
func (s *Store) CurrentProfile() *core.Profile {
	user := s.auth.CurrentUser()
	if user == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.UserID == user.UID {
			cp := p
			return &cp
		}
	}
	return nil
}

// AssignProfile claims an unclaimed profile for the signed-in user.
func (s *Store) AssignProfile(ctx context.Context, profileID string) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	user := s.auth.CurrentUser()
	if user == nil {
		return core.ErrAuthRequired
	}
	err = s.remote.Update(ctx, profilesCollection(budgetID), profileID, map[string]any{
		"userId":    user.UID,
		"lastLogin": time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("assign profile: %w", err)
	}
	return nil
}

// CreateProfileForUser adds a profile linked to the signed-in user. An
// empty name falls back to the email's local part.
func (s *Store) CreateProfileForUser(ctx context.Context, name string) error {
	budgetID, err := s.requireActive()
	if err != nil {
		return err
	}
	user := s.auth.CurrentUser()
	if user == nil {
		return core.ErrAuthRequired
	}
	if strings.TrimSpace(name) == "" {
		name = displayName(user.Email)
	}
	now := time.Now()
	p := core.Profile{Name: name, UserID: user.UID, LastLogin: &now}
	if err := s.addDocument(ctx, profilesCollection(budgetID), p); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *Store) Currency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Currency
}

// DisplayAmount converts a stored amount into the selected display
// currency. Amounts are always stored in the base currency; conversion
// happens at presentation time only.
func (s *Store) DisplayAmount(m core.Money) core.Money {
	return s.fx.Convert(m, s.Currency())
}

func (s *Store) SetCurrency(currency string) {
	s.mu.Lock()
	s.settings.Currency = currency
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
}

func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.Theme
}

func (s *Store) ToggleTheme() string {
	s.mu.Lock()
	if s.settings.Theme == "dark" {
		s.settings.Theme = "light"
	} else {
		s.settings.Theme = "dark"
	}
	theme := s.settings.Theme
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
	return theme
}

func (s *Store) requireActive() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetID == "" {
		return "", core.ErrNoActiveBudget
	}
	return s.budgetID, nil
}
