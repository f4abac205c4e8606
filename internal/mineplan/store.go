// internal/mineplan/store.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package mineplan implements C2, the mine drop-plan store: a persistent,
// bounded catalog of pre-planned mine missions, one file per list.
package mineplan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kjeon/wcs-core/internal/geo"
	"github.com/kjeon/wcs-core/internal/log"
	"github.com/kjeon/wcs-core/internal/wcserrors"
	"github.com/kjeon/wcs-core/internal/wcstypes"
)

// planListFile is the on-disk shape of one list, stored as readable JSON
// under the "plan_list_<N>.json" naming scheme.
type planListFile struct {
	ListNo int                `json:"list_no"`
	Plans  []wcstypes.MinePlan `json:"plans"`
}

// List is the in-memory form of one plan list, keyed by plan number for
// O(1) lookup while keeping Plans ordered for iteration/save.
type List struct {
	ListNo int
	plans  map[int]wcstypes.MinePlan
	order  []int
}

func newList(listNo int) *List {
	return &List{ListNo: listNo, plans: make(map[int]wcstypes.MinePlan)}
}

func (l *List) toFile() planListFile {
	f := planListFile{ListNo: l.ListNo, Plans: make([]wcstypes.MinePlan, 0, len(l.order))}
	for _, no := range l.order {
		f.Plans = append(f.Plans, l.plans[no])
	}
	return f
}

func (l *List) fromFile(f planListFile) {
	l.plans = make(map[int]wcstypes.MinePlan, len(f.Plans))
	l.order = l.order[:0]
	for _, p := range f.Plans {
		l.plans[p.PlanNo] = p
		l.order = append(l.order, p.PlanNo)
	}
}

// Store is the persistent, bounded catalog keyed by (list_no, plan_no).
// Writes go to file first, then update the in-memory cache; reads serve
// from cache under mu.
type Store struct {
	mu              sync.RWMutex
	dir             string
	maxLists        int
	maxPlansPerList int
	lists           map[int]*List
	lg              *log.Logger
}

// New constructs an empty Store rooted at dir, with the given bounds. It
// reads no files; lists stay absent until LoadAll, LoadList or CreateList
// is called for them (the composition root calls LoadAll, which loads
// every list and creates any missing one empty).
func New(dir string, maxLists, maxPlansPerList int, lg *log.Logger) *Store {
	if lg == nil {
		lg = log.NewNop()
	}
	return &Store{
		dir:             dir,
		maxLists:        maxLists,
		maxPlansPerList: maxPlansPerList,
		lists:           make(map[int]*List),
		lg:              lg,
	}
}

func (s *Store) fileName(listNo int) string {
	return filepath.Join(s.dir, fmt.Sprintf("plan_list_%d.json", listNo))
}

// LoadAll eagerly loads every list number in [1, maxLists], creating an
// empty in-memory list for any file that's missing or unreadable — an
// IoError at startup falls back to an empty list rather than failing.
func (s *Store) LoadAll() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	for n := 1; n <= s.maxLists; n++ {
		if err := s.LoadList(n); err != nil {
			s.lg.Warn("mine plan list load failed, starting empty", "list_no", n, "err", err)
			s.mu.Lock()
			s.lists[n] = newList(n)
			s.mu.Unlock()
		}
	}
	return nil
}

// LoadList reads list n's file from disk into the cache. A missing file is
// treated as an empty list, not an error.
func (s *Store) LoadList(n int) error {
	if err := validateListNo(n, s.maxLists); err != nil {
		return err
	}

	data, err := os.ReadFile(s.fileName(n))
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.lists[n] = newList(n)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}

	var f planListFile
	if err := json.Unmarshal(data, &f); err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}

	l := newList(n)
	l.fromFile(f)

	s.mu.Lock()
	s.lists[n] = l
	s.mu.Unlock()
	return nil
}

// SaveList writes list n's cached contents to its file under the write
// lock; the cache itself is not changed. The mutating operations below do
// not go through SaveList: each writes its updated snapshot with
// saveListLocked before replacing the cached list.
func (s *Store) SaveList(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[n]
	if !ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not loaded", n))
	}
	return s.saveListLocked(l)
}

// saveListLocked performs the atomic write-temp-then-rename used by every
// mutating operation below. It must be called with s.mu held for writing,
// or with l owned exclusively by the caller.
func (s *Store) saveListLocked(l *List) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}

	data, err := json.MarshalIndent(l.toFile(), "", "  ")
	if err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}

	final := s.fileName(l.ListNo)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	return nil
}

// CreateList creates an empty list n, failing if already present or out
// of range. It persists immediately so a restart sees it.
func (s *Store) CreateList(n int) error {
	if err := validateListNo(n, s.maxLists); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[n]; ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d already exists", n))
	}

	l := newList(n)
	if err := s.saveListLocked(l); err != nil {
		return err
	}
	s.lists[n] = l
	return nil
}

// DeleteList removes list n's file and cache entry.
func (s *Store) DeleteList(n int) error {
	if err := validateListNo(n, s.maxLists); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[n]; !ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", n))
	}

	if err := os.Remove(s.fileName(n)); err != nil && !os.IsNotExist(err) {
		return wcserrors.New(wcserrors.KindIoError, err.Error())
	}
	delete(s.lists, n)
	return nil
}

// GetList returns a copy of list n's plans, ordered as stored.
func (s *Store) GetList(n int) ([]wcstypes.MinePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[n]
	if !ok {
		return nil, wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", n))
	}
	return l.toFile().Plans, nil
}

// GetPlan returns the plan identified by (listNo, planNo).
func (s *Store) GetPlan(listNo, planNo int) (wcstypes.MinePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[listNo]
	if !ok {
		return wcstypes.MinePlan{}, wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", listNo))
	}
	p, ok := l.plans[planNo]
	if !ok {
		return wcstypes.MinePlan{}, wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("plan %d not found in list %d", planNo, listNo))
	}
	return p, nil
}

// AvailableListNumbers returns every loaded list number, ascending.
func (s *Store) AvailableListNumbers() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nums := make([]int, 0, len(s.lists))
	for n := range s.lists {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// AddPlan inserts plan into list listNo, failing on a duplicate plan
// number or a full list. File write happens before the cache is updated.
func (s *Store) AddPlan(listNo int, plan wcstypes.MinePlan) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[listNo]
	if !ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", listNo))
	}
	if _, exists := l.plans[plan.PlanNo]; exists {
		return wcserrors.New(wcserrors.KindDuplicatePlanNumber, fmt.Sprintf("plan %d already exists in list %d", plan.PlanNo, listNo))
	}
	if len(l.order) >= s.maxPlansPerList {
		return wcserrors.New(wcserrors.KindPlanListFull, fmt.Sprintf("list %d is full", listNo))
	}

	snapshot := *l
	snapshot.plans = cloneMap(l.plans)
	snapshot.order = append(append([]int{}, l.order...), plan.PlanNo)
	snapshot.plans[plan.PlanNo] = plan

	if err := s.saveListLocked(&snapshot); err != nil {
		return err
	}
	s.lists[listNo] = &snapshot
	return nil
}

// UpdatePlan upserts plan into list listNo: it inserts it if absent
// (failing with PlanListFull when the list is already full) and overwrites
// it in place if present.
func (s *Store) UpdatePlan(listNo int, plan wcstypes.MinePlan) error {
	if err := ValidatePlan(plan); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[listNo]
	if !ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", listNo))
	}

	snapshot := *l
	snapshot.plans = cloneMap(l.plans)
	if _, exists := snapshot.plans[plan.PlanNo]; !exists {
		if len(l.order) >= s.maxPlansPerList {
			return wcserrors.New(wcserrors.KindPlanListFull, fmt.Sprintf("list %d is full", listNo))
		}
		snapshot.order = append(append([]int{}, l.order...), plan.PlanNo)
	} else {
		snapshot.order = append([]int{}, l.order...)
	}
	snapshot.plans[plan.PlanNo] = plan

	if err := s.saveListLocked(&snapshot); err != nil {
		return err
	}
	s.lists[listNo] = &snapshot
	return nil
}

// RemovePlan deletes planNo from list listNo.
func (s *Store) RemovePlan(listNo, planNo int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[listNo]
	if !ok {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list %d not found", listNo))
	}
	if _, exists := l.plans[planNo]; !exists {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("plan %d not found in list %d", planNo, listNo))
	}

	snapshot := *l
	snapshot.plans = cloneMap(l.plans)
	delete(snapshot.plans, planNo)
	snapshot.order = make([]int, 0, len(l.order))
	for _, no := range l.order {
		if no != planNo {
			snapshot.order = append(snapshot.order, no)
		}
	}

	if err := s.saveListLocked(&snapshot); err != nil {
		return err
	}
	s.lists[listNo] = &snapshot
	return nil
}

// ValidatePlan enforces the field-level validation rules: nonzero plan
// number, in-range positions, and at most eight waypoints.
func ValidatePlan(p wcstypes.MinePlan) error {
	if p.PlanNo == 0 {
		return wcserrors.New(wcserrors.KindInvalidPlan, "plan_no must be nonzero")
	}
	if !geo.ValidPosition(p.LaunchPos) {
		return wcserrors.New(wcserrors.KindInvalidPlan, "launch position out of range")
	}
	if !geo.ValidPosition(p.DropPos) {
		return wcserrors.New(wcserrors.KindInvalidPlan, "drop position out of range")
	}
	if len(p.Waypoints) > wcstypes.MaxWaypoints {
		return wcserrors.New(wcserrors.KindTooManyWaypoints, fmt.Sprintf("%d waypoints exceeds max %d", len(p.Waypoints), wcstypes.MaxWaypoints))
	}
	for i, wp := range p.Waypoints {
		if !geo.ValidPosition(wp) {
			return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("waypoint %d out of range", i))
		}
	}
	return nil
}

func validateListNo(n, max int) error {
	if n < 1 || n > max {
		return wcserrors.New(wcserrors.KindInvalidPlan, fmt.Sprintf("list number %d out of range [1, %d]", n, max))
	}
	return nil
}

func cloneMap(m map[int]wcstypes.MinePlan) map[int]wcstypes.MinePlan {
	out := make(map[int]wcstypes.MinePlan, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
