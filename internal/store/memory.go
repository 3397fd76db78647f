package store

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"habitStreakAPI/internal/calendar"
	"habitStreakAPI/internal/keymutex"
	"habitStreakAPI/internal/notification"
	"habitStreakAPI/internal/streak"
)

// MemoryStore keeps everything in process. Writes made through a HabitTx are
// staged and applied in one step when the transaction function succeeds.
type MemoryStore struct {
	mu        sync.RWMutex
	habits    map[streak.HabitKey]struct{}
	logs      map[streak.HabitKey]map[civil.Date]struct{}
	intervals map[streak.HabitKey][]streak.Interval
	freezes   map[streak.HabitKey][]streak.FreezeDay
	restores  map[string]streak.RestoreRecord
	plans     map[string]string
	tokens    map[string][]notification.DeviceToken

	habitLocks   *keymutex.KeyMutex
	paymentLocks *keymutex.KeyMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		habits:       make(map[streak.HabitKey]struct{}),
		logs:         make(map[streak.HabitKey]map[civil.Date]struct{}),
		intervals:    make(map[streak.HabitKey][]streak.Interval),
		freezes:      make(map[streak.HabitKey][]streak.FreezeDay),
		restores:     make(map[string]streak.RestoreRecord),
		plans:        make(map[string]string),
		tokens:       make(map[string][]notification.DeviceToken),
		habitLocks:   keymutex.New(),
		paymentLocks: keymutex.New(),
	}
}

func (s *MemoryStore) CreateHabit(ctx context.Context, key streak.HabitKey, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for existing := range s.habits {
		if existing.HabitID == key.HabitID {
			return ErrDuplicateHabit
		}
	}
	s.habits[key] = struct{}{}
	return nil
}

func (s *MemoryStore) SetPlan(ctx context.Context, ownerID, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[ownerID] = plan
	return nil
}

func (s *MemoryStore) SaveDeviceToken(ctx context.Context, ownerID string, token notification.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tokens[ownerID] {
		if t.Token == token.Token {
			s.tokens[ownerID][i] = token
			return nil
		}
	}
	s.tokens[ownerID] = append(s.tokens[ownerID], token)
	return nil
}

// PutIntervals overwrites stored intervals without any checks.
func (s *MemoryStore) PutIntervals(key streak.HabitKey, intervals []streak.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[key] = cloneIntervals(intervals)
}

func (s *MemoryStore) Freezes(key streak.HabitKey) []streak.FreezeDay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]streak.FreezeDay(nil), s.freezes[key]...)
}

func (s *MemoryStore) Restores() []streak.RestoreRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]streak.RestoreRecord, 0, len(s.restores))
	for _, r := range s.restores {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RestoredAt.Before(out[j].RestoredAt) })
	return out
}

func cloneIntervals(in []streak.Interval) []streak.Interval {
	if in == nil {
		return nil
	}
	out := make([]streak.Interval, len(in))
	for i, iv := range in {
		if iv.EndDate != nil {
			end := *iv.EndDate
			iv.EndDate = &end
		}
		out[i] = iv
	}
	return out
}

func sortNewestFirst(ivs []streak.Interval) {
	sort.SliceStable(ivs, func(i, j int) bool { return ivs[i].StartDate.After(ivs[j].StartDate) })
}

func (s *MemoryStore) completionDates(key streak.HabitKey) []civil.Date {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]civil.Date, 0, len(s.logs[key]))
	for d := range s.logs[key] {
		out = append(out, d)
	}
	return calendar.SortUnique(out)
}

func (s *MemoryStore) ListCompletionDates(ctx context.Context, key streak.HabitKey) ([]civil.Date, error) {
	return s.completionDates(key), nil
}

func (s *MemoryStore) HasCompletionOn(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.logs[key][date]
	return ok, nil
}

func (s *MemoryStore) AddCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days, ok := s.logs[key]
	if !ok {
		days = make(map[civil.Date]struct{})
		s.logs[key] = days
	}
	if _, exists := days[date]; exists {
		return ErrDuplicateLog
	}
	days[date] = struct{}{}
	return nil
}

func (s *MemoryStore) DeleteCompletion(ctx context.Context, key streak.HabitKey, date civil.Date) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[key][date]; !ok {
		return false, nil
	}
	delete(s.logs[key], date)
	return true, nil
}

func (s *MemoryStore) HabitOwnedBy(ctx context.Context, key streak.HabitKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.habits[key]
	return ok, nil
}

func (s *MemoryStore) ListIntervals(ctx context.Context, key streak.HabitKey) ([]streak.Interval, error) {
	s.mu.RLock()
	out := cloneIntervals(s.intervals[key])
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) HabitsWithOpenIntervals(ctx context.Context) ([]streak.HabitKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []streak.HabitKey
	for key, ivs := range s.intervals {
		if _, ok := streak.OpenInterval(ivs); ok {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (s *MemoryStore) CountFreezesBetween(ctx context.Context, ownerID string, from, to civil.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key, fs := range s.freezes {
		if key.OwnerID != ownerID {
			continue
		}
		for _, f := range fs {
			if !f.Date.Before(from) && !f.Date.After(to) {
				n++
			}
		}
	}
	return n, nil
}

func (s *MemoryStore) PlanFor(ctx context.Context, ownerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if plan, ok := s.plans[ownerID]; ok {
		return plan, nil
	}
	return PlanFree, nil
}

func (s *MemoryStore) DeviceTokens(ctx context.Context, ownerID string) ([]notification.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]notification.DeviceToken(nil), s.tokens[ownerID]...), nil
}

func (s *MemoryStore) WithinHabit(ctx context.Context, key streak.HabitKey, fn func(tx HabitTx) error) error {
	unlock := s.habitLocks.Lock(key.String())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	tx := &memTx{
		store:     s,
		key:       key,
		intervals: cloneIntervals(s.intervals[key]),
	}
	s.mu.RUnlock()
	defer tx.releasePayments()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	store     *MemoryStore
	key       streak.HabitKey
	intervals []streak.Interval
	dirty     bool
	added     map[civil.Date]struct{}
	removed   map[civil.Date]struct{}
	freezes   []streak.FreezeDay
	restores  []streak.RestoreRecord
	unlocks   []func()
}

func (t *memTx) Key() streak.HabitKey { return t.key }

func (t *memTx) releasePayments() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range t.restores {
		if _, exists := s.restores[r.PaymentKey]; exists {
			return ErrDuplicatePayment
		}
	}
	for d := range t.added {
		if _, exists := s.logs[t.key][d]; exists {
			return ErrDuplicateLog
		}
	}
	for _, r := range t.restores {
		s.restores[r.PaymentKey] = r
	}
	for d := range t.removed {
		delete(s.logs[t.key], d)
	}
	if len(t.added) > 0 {
		days, ok := s.logs[t.key]
		if !ok {
			days = make(map[civil.Date]struct{})
			s.logs[t.key] = days
		}
		for d := range t.added {
			days[d] = struct{}{}
		}
	}
	if t.dirty {
		if len(t.intervals) == 0 {
			delete(s.intervals, t.key)
		} else {
			s.intervals[t.key] = t.intervals
		}
	}
	if len(t.freezes) > 0 {
		s.freezes[t.key] = append(s.freezes[t.key], t.freezes...)
	}
	return nil
}

// completionDates is the committed ledger with this unit's staged changes
// applied.
func (t *memTx) completionDates() []civil.Date {
	committed := t.store.completionDates(t.key)
	out := make([]civil.Date, 0, len(committed)+len(t.added))
	for _, d := range committed {
		if _, gone := t.removed[d]; !gone {
			out = append(out, d)
		}
	}
	for d := range t.added {
		out = append(out, d)
	}
	return calendar.SortUnique(out)
}

func (t *memTx) ListCompletionDates(ctx context.Context) ([]civil.Date, error) {
	return t.completionDates(), nil
}

func (t *memTx) HasCompletionOn(ctx context.Context, date civil.Date) (bool, error) {
	if _, ok := t.added[date]; ok {
		return true, nil
	}
	if _, ok := t.removed[date]; ok {
		return false, nil
	}
	return t.store.HasCompletionOn(ctx, t.key, date)
}

func (t *memTx) AddCompletion(ctx context.Context, date civil.Date) error {
	exists, err := t.HasCompletionOn(ctx, date)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateLog
	}
	if _, ok := t.removed[date]; ok {
		delete(t.removed, date)
		return nil
	}
	if t.added == nil {
		t.added = make(map[civil.Date]struct{})
	}
	t.added[date] = struct{}{}
	return nil
}

func (t *memTx) DeleteCompletion(ctx context.Context, date civil.Date) (bool, error) {
	exists, err := t.HasCompletionOn(ctx, date)
	if err != nil || !exists {
		return false, err
	}
	if _, ok := t.added[date]; ok {
		delete(t.added, date)
		return true, nil
	}
	if t.removed == nil {
		t.removed = make(map[civil.Date]struct{})
	}
	t.removed[date] = struct{}{}
	return true, nil
}

func (t *memTx) LastCompletion(ctx context.Context) (civil.Date, bool, error) {
	dates := t.completionDates()
	if len(dates) == 0 {
		return civil.Date{}, false, nil
	}
	return dates[len(dates)-1], true, nil
}

func (t *memTx) ListFreezeDates(ctx context.Context) ([]civil.Date, error) {
	t.store.mu.RLock()
	var out []civil.Date
	for _, f := range t.store.freezes[t.key] {
		out = append(out, f.Date)
	}
	t.store.mu.RUnlock()
	for _, f := range t.freezes {
		out = append(out, f.Date)
	}
	return calendar.SortUnique(out), nil
}

func (t *memTx) ListIntervals(ctx context.Context) ([]streak.Interval, error) {
	out := cloneIntervals(t.intervals)
	sortNewestFirst(out)
	return out, nil
}

func (t *memTx) ReplaceIntervals(ctx context.Context, intervals []streak.Interval) error {
	t.intervals = cloneIntervals(intervals)
	for i := range t.intervals {
		t.intervals[i].OwnerID = t.key.OwnerID
		t.intervals[i].HabitID = t.key.HabitID
	}
	t.dirty = true
	return nil
}

func (t *memTx) UpdateInterval(ctx context.Context, iv streak.Interval) error {
	for i := range t.intervals {
		if t.intervals[i].ID != iv.ID {
			continue
		}
		updated := cloneIntervals([]streak.Interval{iv})[0]
		t.intervals[i].EndDate = updated.EndDate
		t.intervals[i].IsLongest = updated.IsLongest
		t.intervals[i].UpdatedAt = updated.UpdatedAt
		t.dirty = true
		return nil
	}
	return ErrNotFound
}

func (t *memTx) DeleteIntervals(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := t.intervals[:0]
	for _, iv := range t.intervals {
		if _, ok := drop[iv.ID]; !ok {
			kept = append(kept, iv)
		}
	}
	t.intervals = kept
	t.dirty = true
	return nil
}

func (t *memTx) InsertFreeze(ctx context.Context, f streak.FreezeDay) error {
	f.OwnerID, f.HabitID = t.key.OwnerID, t.key.HabitID
	t.freezes = append(t.freezes, f)
	return nil
}

func (t *memTx) LockPayment(ctx context.Context, paymentKey string) error {
	t.unlocks = append(t.unlocks, t.store.paymentLocks.Lock(paymentKey))
	return nil
}

func (t *memTx) FindRestoreByPayment(ctx context.Context, paymentKey string) (*streak.RestoreRecord, error) {
	for _, r := range t.restores {
		if r.PaymentKey == paymentKey {
			found := r
			return &found, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if r, ok := t.store.restores[paymentKey]; ok {
		return &r, nil
	}
	return nil, nil
}

func (t *memTx) LatestRestore(ctx context.Context) (*streak.RestoreRecord, error) {
	var latest *streak.RestoreRecord
	consider := func(r streak.RestoreRecord) {
		if r.OwnerID != t.key.OwnerID || r.HabitID != t.key.HabitID {
			return
		}
		if latest == nil || r.RestoredOn.After(latest.RestoredOn) ||
			(r.RestoredOn == latest.RestoredOn && r.RestoredAt.After(latest.RestoredAt)) {
			c := r
			latest = &c
		}
	}

	t.store.mu.RLock()
	for _, r := range t.store.restores {
		consider(r)
	}
	t.store.mu.RUnlock()
	for _, r := range t.restores {
		consider(r)
	}
	return latest, nil
}

func (t *memTx) InsertRestore(ctx context.Context, r streak.RestoreRecord) error {
	existing, _ := t.FindRestoreByPayment(ctx, r.PaymentKey)
	if existing != nil {
		return ErrDuplicatePayment
	}
	r.OwnerID, r.HabitID = t.key.OwnerID, t.key.HabitID
	t.restores = append(t.restores, r)
	return nil
}
