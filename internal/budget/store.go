// Package budget owns the active-budget lifecycle: which budget the signed
// in user is working in, four snapshot-synchronized lists mirroring the
// remote collections, and the mutation API that writes back. Derived views
// are computed on demand with the pure functions in internal/core.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fambudget/internal/auth"
	"fambudget/internal/core"
	"fambudget/internal/docstore"
	"fambudget/internal/fx"
	applog "fambudget/internal/log"
	"fambudget/internal/prefs"
)

const budgetsCollection = "budgets"

// codeAttempts bounds the best-effort uniqueness loop when generating a
// join code. Uniqueness is query-then-write, not transactional.
const codeAttempts = 5

func profilesCollection(budgetID string) string   { return budgetsCollection + "/" + budgetID + "/profiles" }
func categoriesCollection(budgetID string) string { return budgetsCollection + "/" + budgetID + "/categories" }
func goalsCollection(budgetID string) string      { return budgetsCollection + "/" + budgetID + "/goals" }
func operationsCollection(budgetID string) string { return budgetsCollection + "/" + budgetID + "/operations" }

// Snapshot is a point-in-time copy of the four synchronized lists.
// Operations are ordered by date descending. The lists come from four
// independent subscriptions, so an operation may transiently reference a
// category or profile not present in its sibling list.
type Snapshot struct {
	Profiles   []core.Profile
	Categories []core.Category
	Goals      []core.Goal
	Operations []core.Operation
}

// Derived bundles every aggregate recomputed from one snapshot.
type Derived struct {
	Balances        map[string]core.Money
	Totals          core.Totals
	TotalsByProfile map[string]core.Totals
	SpentByCategory map[string]core.Money
	SavedByGoal     map[string]core.Money
}

// Store is the budget state store. A single Store follows one user's
// session: callers switch budgets with SetActiveBudget and read state via
// Snapshot. Lists are replaced wholesale on every remote snapshot; a
// generation counter makes callbacks from torn-down subscriptions no-ops.
type Store struct {
	remote    docstore.Store
	auth      auth.Provider
	prefsFile *prefs.File
	fx        *fx.Converter
	log       *applog.Logger

	// switchMu serializes budget switches end to end. Two interleaved
	// switches could otherwise capture the same generation and both
	// install their subscriptions, leaking the first set live.
	switchMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	budgetID   string
	budgetCode string
	profiles   []core.Profile
	categories []core.Category
	goals      []core.Goal
	operations []core.Operation
	unsubs     []docstore.UnsubscribeFunc
	settings   prefs.Prefs

	unsubAuth auth.UnsubscribeFunc
}

// New builds a store from its collaborators and the state persisted from
// the previous run. Signing out tears down subscriptions and wipes the
// persisted state.
func New(remote docstore.Store, provider auth.Provider, file *prefs.File, initial prefs.Prefs, logger *applog.Logger) *Store {
	s := &Store{
		remote:    remote,
		auth:      provider,
		prefsFile: file,
		fx:        fx.Default(),
		settings:  initial,
		log:       logger.WithComponent(applog.ComponentBudget),
	}
	// Subscribe fires synchronously with the current state; only later
	// transitions to "signed out" should wipe local state.
	first := true
	s.unsubAuth = provider.Subscribe(func(u *auth.User) {
		if first {
			first = false
			return
		}
		if u == nil {
			s.teardown()
			if s.prefsFile != nil {
				if err := s.prefsFile.Clear(); err != nil {
					s.log.Warn("clear persisted state", "error", err)
				}
			}
			s.mu.Lock()
			s.settings = prefs.Prefs{Currency: prefs.DefaultCurrency, Theme: prefs.DefaultTheme}
			s.mu.Unlock()
		}
	})
	return s
}

// Close detaches from the auth provider and tears down subscriptions.
func (s *Store) Close() {
	if s.unsubAuth != nil {
		s.unsubAuth()
	}
	s.teardown()
}

// SetActiveBudget switches the active budget. Previous subscriptions are
// torn down first; the budget must exist and the current user must be a
// member, otherwise the store reverts to no active budget.
func (s *Store) SetActiveBudget(ctx context.Context, id string) error {
	user := s.auth.CurrentUser()
	if user == nil {
		return core.ErrAuthRequired
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty budget id", core.ErrInvalidInput)
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.teardown()

	b, err := s.loadBudget(ctx, id)
	if err != nil {
		return err
	}
	if !b.Members[user.UID] {
		return fmt.Errorf("user %s is not a member of budget %s: %w", user.UID, id, core.ErrAccessDenied)
	}

	s.mu.Lock()
	s.budgetID = id
	s.budgetCode = b.Code
	gen := s.gen
	s.mu.Unlock()

	unsubs := []docstore.UnsubscribeFunc{
		s.remote.Subscribe(profilesCollection(id), s.onProfiles(gen), s.onSubError("profiles")),
		s.remote.Subscribe(categoriesCollection(id), s.onCategories(gen), s.onSubError("categories")),
		s.remote.Subscribe(goalsCollection(id), s.onGoals(gen), s.onSubError("goals")),
		s.remote.Subscribe(operationsCollection(id), s.onOperations(gen), s.onSubError("operations")),
	}

	s.mu.Lock()
	if s.gen != gen {
		// Torn down while subscribing; drop the stale subscriptions.
		s.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		return core.ErrNoActiveBudget
	}
	s.unsubs = unsubs
	s.settings.BudgetID = id
	s.settings.BudgetCode = b.Code
	settings := s.settings
	s.mu.Unlock()

	s.persist(settings)
	s.log.Info("budget activated", "budget_id", id)
	return nil
}

// CreateBudget allocates a budget with the calling user as owner and sole
// member, seeds default profiles and categories, and activates it.
// Seeding is a sequence of independent writes, not a transaction.
func (s *Store) CreateBudget(ctx context.Context) (string, error) {
	user := s.auth.CurrentUser()
	if user == nil {
		return "", core.ErrAuthRequired
	}

	code, err := s.freshCode(ctx)
	if err != nil {
		return "", err
	}
	b := core.Budget{
		Owner:    user.UID,
		Code:     code,
		Currency: prefs.DefaultCurrency,
		Members:  map[string]bool{user.UID: true},
	}
	fields, err := docstore.Encode(b)
	if err != nil {
		return "", fmt.Errorf("encode budget: %w", err)
	}
	id, err := s.remote.Add(ctx, budgetsCollection, fields)
	if err != nil {
		return "", fmt.Errorf("create budget: %w", err)
	}

	now := time.Now()
	seedProfiles := []core.Profile{
		{Name: displayName(user.Email), UserID: user.UID, LastLogin: &now},
		{Name: "Partner"},
	}
	for _, p := range seedProfiles {
		if err := s.addDocument(ctx, profilesCollection(id), p); err != nil {
			return "", fmt.Errorf("seed profile %q: %w", p.Name, err)
		}
	}
	for _, c := range defaultCategories() {
		if err := s.addDocument(ctx, categoriesCollection(id), c); err != nil {
			return "", fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}

	if err := s.SetActiveBudget(ctx, id); err != nil {
		return "", err
	}
	s.log.Info("budget created", "budget_id", id)
	return id, nil
}

// JoinBudget resolves the input first as a budget id, then as a
// case-insensitive join code. On match the user is added to membership and
// gets a profile, and the budget becomes active.
func (s *Store) JoinBudget(ctx context.Context, idOrCode string) (string, error) {
	user := s.auth.CurrentUser()
	if user == nil {
		return "", core.ErrAuthRequired
	}
	raw := strings.TrimSpace(idOrCode)
	if raw == "" {
		return "", fmt.Errorf("%w: empty budget id or code", core.ErrInvalidInput)
	}

	b, err := s.resolveBudget(ctx, raw)
	if err != nil {
		return "", err
	}

	if !b.Members[user.UID] {
		members := b.Members
		if members == nil {
			members = map[string]bool{}
		}
		members[user.UID] = true
		err := s.remote.Update(ctx, budgetsCollection, b.ID, map[string]any{"members": members})
		if err != nil {
			return "", fmt.Errorf("add member: %w", err)
		}
	}
	if err := s.ensureProfile(ctx, b.ID, user); err != nil {
		return "", err
	}

	if err := s.SetActiveBudget(ctx, b.ID); err != nil {
		return "", err
	}
	s.log.Info("budget joined", "budget_id", b.ID)
	return b.ID, nil
}

// LeaveFamily removes the calling user's profile and membership from the
// active budget and clears the local active-budget state.
func (s *Store) LeaveFamily(ctx context.Context) error {
	s.mu.Lock()
	budgetID := s.budgetID
	s.mu.Unlock()
	if budgetID == "" {
		return core.ErrNoActiveBudget
	}
	user := s.auth.CurrentUser()
	if user == nil {
		return core.ErrAuthRequired
	}

	profile, err := s.findUserProfile(ctx, budgetID, user.UID)
	if err != nil {
		return err
	}
	if err := s.remote.Delete(ctx, profilesCollection(budgetID), profile.ID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	if b, err := s.loadBudget(ctx, budgetID); err == nil && b.Members[user.UID] {
		delete(b.Members, user.UID)
		err := s.remote.Update(ctx, budgetsCollection, budgetID, map[string]any{"members": b.Members})
		if err != nil {
			s.log.Warn("remove membership", "budget_id", budgetID, "error", err)
		}
	}

	s.teardown()
	s.log.Info("left budget", "budget_id", budgetID)
	return nil
}

// UpdateBudgetCode rotates the join code of the active budget. The code is
// uppercased and stripped of whitespace, and must keep the minimum length.
func (s *Store) UpdateBudgetCode(ctx context.Context, newCode string) error {
	s.mu.Lock()
	budgetID := s.budgetID
	s.mu.Unlock()
	if budgetID == "" {
		return core.ErrNoActiveBudget
	}

	code := core.NormalizeCode(newCode)
	if len(code) < core.MinCodeLength {
		return fmt.Errorf("%w: code %q is shorter than %d characters", core.ErrInvalidInput, code, core.MinCodeLength)
	}
	if err := s.remote.Update(ctx, budgetsCollection, budgetID, map[string]any{"code": code}); err != nil {
		return fmt.Errorf("update code: %w", err)
	}

	s.mu.Lock()
	s.budgetCode = code
	s.settings.BudgetCode = code
	settings := s.settings
	s.mu.Unlock()
	s.persist(settings)
	return nil
}

// Snapshot returns copies of the four synchronized lists.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Profiles:   append([]core.Profile(nil), s.profiles...),
		Categories: append([]core.Category(nil), s.categories...),
		Goals:      append([]core.Goal(nil), s.goals...),
		Operations: append([]core.Operation(nil), s.operations...),
	}
}

// Derive recomputes every aggregate from one snapshot.
func Derive(snap Snapshot) Derived {
	return Derived{
		Balances:        core.Balances(snap.Profiles, snap.Operations),
		Totals:          core.GlobalTotals(snap.Operations),
		TotalsByProfile: core.TotalsByProfile(snap.Profiles, snap.Operations),
		SpentByCategory: core.SpentByCategory(snap.Operations),
		SavedByGoal:     core.SavedByGoal(snap.Operations),
	}
}

func (s *Store) BudgetID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgetID
}

func (s *Store) BudgetCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgetCode
}

// teardown unsubscribes everything and clears the active budget. Bumping
// the generation first guarantees that a callback racing the unsubscribe
// observes a stale generation and does nothing.
func (s *Store) teardown() {
	s.mu.Lock()
	s.gen++
	unsubs := s.unsubs
	s.unsubs = nil
	s.budgetID = ""
	s.budgetCode = ""
	s.profiles = nil
	s.categories = nil
	s.goals = nil
	s.operations = nil
	s.settings.BudgetID = ""
	s.settings.BudgetCode = ""
	settings := s.settings
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.persist(settings)
}

func (s *Store) persist(p prefs.Prefs) {
	if s.prefsFile == nil {
		return
	}
	if err := s.prefsFile.Save(p); err != nil {
		s.log.Warn("persist local state", "error", err)
	}
}

func (s *Store) loadBudget(ctx context.Context, id string) (core.Budget, error) {
	doc, err := s.remote.Get(ctx, budgetsCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("load budget: %w", err)
	}
	var b core.Budget
	if err := docstore.Decode(doc, &b); err != nil {
		return core.Budget{}, fmt.Errorf("decode budget: %w", err)
	}
	b.ID = doc.ID
	return b, nil
}

func (s *Store) resolveBudget(ctx context.Context, raw string) (core.Budget, error) {
	b, err := s.loadBudget(ctx, raw)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Budget{}, err
	}

	docs, err := s.remote.QueryEqual(ctx, budgetsCollection, "code", core.NormalizeCode(raw))
	if err != nil {
		return core.Budget{}, fmt.Errorf("code lookup: %w", err)
	}
	if len(docs) == 0 {
		return core.Budget{}, fmt.Errorf("budget %q: %w", raw, core.ErrNotFound)
	}
	var found core.Budget
	if err := docstore.Decode(docs[0], &found); err != nil {
		return core.Budget{}, fmt.Errorf("decode budget: %w", err)
	}
	found.ID = docs[0].ID
	return found, nil
}

func (s *Store) freshCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := core.GenerateCode(core.DefaultCodeLength)
		taken, err := s.remote.QueryEqual(ctx, budgetsCollection, "code", code)
		if err != nil {
			return "", fmt.Errorf("code uniqueness check: %w", err)
		}
		if len(taken) == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique join code after %d attempts", codeAttempts)
}

func (s *Store) findUserProfile(ctx context.Context, budgetID, uid string) (core.Profile, error) {
	docs, err := s.remote.List(ctx, profilesCollection(budgetID))
	if err != nil {
		return core.Profile{}, fmt.Errorf("list profiles: %w", err)
	}
	for _, doc := range docs {
		var p core.Profile
		if err := docstore.Decode(doc, &p); err != nil {
			continue
		}
		if p.UserID == uid {
			p.ID = doc.ID
			return p, nil
		}
	}
	return core.Profile{}, fmt.Errorf("profile for user %s: %w", uid, core.ErrNotFound)
}

func (s *Store) ensureProfile(ctx context.Context, budgetID string, user *auth.User) error {
	if _, err := s.findUserProfile(ctx, budgetID, user.UID); err == nil {
		return nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	now := time.Now()
	p := core.Profile{Name: displayName(user.Email), UserID: user.UID, LastLogin: &now}
	if err := s.addDocument(ctx, profilesCollection(budgetID), p); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (s *Store) addDocument(ctx context.Context, collection string, v any) error {
	fields, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	_, err = s.remote.Add(ctx, collection, fields)
	return err
}

func (s *Store) onSubError(collection string) docstore.ErrorFunc {
	return func(err error) {
		// Keep the last-known list; stale beats empty.
		s.log.Error("subscription error", "collection", collection, "error", err)
	}
}

func (s *Store) onProfiles(gen uint64) docstore.SnapshotFunc {
	return func(docs []docstore.Document) {
		list := make([]core.Profile, 0, len(docs))
		for _, doc := range docs {
			var p core.Profile
			if err := docstore.Decode(doc, &p); err != nil {
				s.log.Warn("decode profile", "id", doc.ID, "error", err)
				continue
			}
			p.ID = doc.ID
			list = append(list, p)
		}
		s.replace(gen, func() { s.profiles = list })
	}
}

func (s *Store) onCategories(gen uint64) docstore.SnapshotFunc {
	return func(docs []docstore.Document) {
		list := make([]core.Category, 0, len(docs))
		for _, doc := range docs {
			var c core.Category
			if err := docstore.Decode(doc, &c); err != nil {
				s.log.Warn("decode category", "id", doc.ID, "error", err)
				continue
			}
			c.ID = doc.ID
			list = append(list, c)
		}
		s.replace(gen, func() { s.categories = list })
	}
}

func (s *Store) onGoals(gen uint64) docstore.SnapshotFunc {
	return func(docs []docstore.Document) {
		list := make([]core.Goal, 0, len(docs))
		for _, doc := range docs {
			var g core.Goal
			if err := docstore.Decode(doc, &g); err != nil {
				s.log.Warn("decode goal", "id", doc.ID, "error", err)
				continue
			}
			g.ID = doc.ID
			list = append(list, g)
		}
		s.replace(gen, func() { s.goals = list })
	}
}

func (s *Store) onOperations(gen uint64) docstore.SnapshotFunc {
	return func(docs []docstore.Document) {
		list := make([]core.Operation, 0, len(docs))
		for _, doc := range docs {
			var op core.Operation
			if err := docstore.Decode(doc, &op); err != nil {
				s.log.Warn("decode operation", "id", doc.ID, "error", err)
				continue
			}
			op.ID = doc.ID
			op.CreatedAt = doc.CreatedAt
			list = append(list, op)
		}
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].Date.Equal(list[j].Date) {
				return list[i].Date.After(list[j].Date)
			}
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
		s.replace(gen, func() { s.operations = list })
	}
}

// replace applies a list swap unless the subscription that produced it has
// been torn down since.
func (s *Store) replace(gen uint64, apply func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	apply()
}

func displayName(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return "New member"
}

func defaultCategories() []core.Category {
	return []core.Category{
		{Name: "Salary", Emoji: "💰", Kind: core.CategoryIncome},
		{Name: "Freelance", Emoji: "💻", Kind: core.CategoryIncome},
		{Name: "Gifts", Emoji: "🎁", Kind: core.CategoryIncome},
		{Name: "Food", Emoji: "🍕", Kind: core.CategoryExpense},
		{Name: "Transport", Emoji: "🚗", Kind: core.CategoryExpense},
		{Name: "Entertainment", Emoji: "🎮", Kind: core.CategoryExpense},
		{Name: "Shopping", Emoji: "🛒", Kind: core.CategoryExpense},
		{Name: "Health", Emoji: "🏥", Kind: core.CategoryExpense},
		{Name: "Other", Emoji: "📝", Kind: core.CategoryBoth},
	}
}
