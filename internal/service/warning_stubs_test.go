package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-warning-api/internal/models"
	appErrors "github.com/noah-isme/sma-warning-api/pkg/errors"
)

// memAlertStore mimics the conditional updates and the open-pair unique index of the warning_records table.
type memAlertStore struct {
	mu      sync.Mutex
	records map[string]*models.AlertRecord
	seq     int
	findErr error
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{records: make(map[string]*models.AlertRecord)}
}

func (s *memAlertStore) FindActive(ctx context.Context, studentID, ruleID string) (*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, r := range s.records {
		if r.StudentID == studentID && r.RuleID == ruleID && r.Status == models.AlertStatusActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memAlertStore) Insert(ctx context.Context, record *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.StudentID == record.StudentID && r.RuleID == record.RuleID && r.Status == models.AlertStatusActive {
			return appErrors.Clone(appErrors.ErrConflict, "duplicate")
		}
	}
	s.seq++
	record.ID = fmt.Sprintf("alert-%03d", s.seq)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	cp := *record
	s.records[record.ID] = &cp
	return nil
}

func (s *memAlertStore) UpdateTrigger(ctx context.Context, id string, trigger models.TriggerData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.Status != models.AlertStatusActive {
		return sql.ErrNoRows
	}
	r.TriggerData = trigger
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memAlertStore) Transition(ctx context.Context, t models.AlertTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[t.ID]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, src := range t.Action.Sources() {
		if r.Status == src {
			allowed = true
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	r.Status = t.Action.Target()
	r.UpdatedAt = t.At
	if t.Notes != nil {
		notes := *t.Notes
		r.Notes = &notes
	}
	actor := t.Actor
	at := t.At
	if t.Action == models.AlertActionAcknowledge {
		r.AcknowledgedAt, r.AcknowledgedBy = &at, &actor
	} else {
		r.ResolvedAt, r.ResolvedBy = &at, &actor
	}
	return nil
}

func (s *memAlertStore) GetByID(ctx context.Context, id string) (*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (s *memAlertStore) List(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, int, error) {
	all := s.all()
	return all, len(all), nil
}

func (s *memAlertStore) ListByStudent(ctx context.Context, studentID string) ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	for _, r := range s.all() {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memAlertStore) all() []models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AlertRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memAlertStore) seed(record models.AlertRecord) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if record.ID == "" {
		record.ID = fmt.Sprintf("alert-%03d", s.seq)
	}
	s.records[record.ID] = &record
	return record.ID
}

// metricSourceStub serves fixed rows per student.
type metricSourceStub struct {
	mu         sync.Mutex
	scores     map[string][]models.ScoreRecord
	homework   map[string][]models.HomeworkSubmission
	attendance map[string][]models.AttendanceEntry
	err        error
	calls      int
}

func (s *metricSourceStub) ScoresBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[studentID], nil
}

func (s *metricSourceStub) HomeworkBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.HomeworkSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.homework[studentID], nil
}

func (s *metricSourceStub) AttendanceBetween(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.attendance[studentID], nil
}

// metricTable returns preset values; a missing entry is an absent metric.
type metricTable struct {
	values map[string]map[string]float64
	errs   map[string]error
}

func (m metricTable) Compute(ctx context.Context, studentID, metric string, windowDays int) (float64, bool, error) {
	if err, ok := m.errs[studentID]; ok {
		return 0, false, err
	}
	v, ok := m.values[studentID][metric]
	return v, ok, nil
}

type studentDirectoryStub struct {
	students []models.StudentRef
	err      error
}

func (s studentDirectoryStub) ResolveScope(ctx context.Context, scope models.TargetScope) ([]models.StudentRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	if scope.Type == models.ScopeAll {
		return s.students, nil
	}
	want := make(map[string]struct{}, len(scope.IDs))
	for _, id := range scope.IDs {
		want[id] = struct{}{}
	}
	var out []models.StudentRef
	for _, st := range s.students {
		key := st.ID
		if scope.Type == models.ScopeClass {
			if st.ClassID == nil {
				continue
			}
			key = *st.ClassID
		}
		if _, ok := want[key]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s studentDirectoryStub) FindByID(ctx context.Context, id string) (*models.StudentRef, error) {
	for _, st := range s.students {
		if st.ID == id {
			cp := st
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

type staticRules struct {
	rules []models.WarningRule
	err   error
}

func (s staticRules) ActiveRules(ctx context.Context) ([]models.WarningRule, error) {
	return s.rules, s.err
}

type runStoreStub struct {
	mu       sync.Mutex
	created  []models.DetectionRun
	finished []models.DetectionRun
	err      error
}

func (s *runStoreStub) Create(ctx context.Context, run *models.DetectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	run.ID = fmt.Sprintf("run-%d", len(s.created)+1)
	s.created = append(s.created, *run)
	return nil
}

func (s *runStoreStub) Finish(ctx context.Context, run *models.DetectionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, *run)
	return nil
}

func (s *runStoreStub) List(ctx context.Context, filter models.DetectionRunFilter) ([]models.DetectionRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, len(s.finished), nil
}

// memCache is an in-memory CacheRepository.
type memCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	index   map[string]map[string]struct{}
	getErr  error
	deletes int
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte), index: make(map[string]map[string]struct{})}
}

func (m *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(ctx context.Context, resource, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = raw
	if m.index[resource] == nil {
		m.index[resource] = make(map[string]struct{})
	}
	m.index[resource][key] = struct{}{}
	return nil
}

func (m *memCache) Delete(ctx context.Context, resource string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.index[resource], k)
		m.deletes++
	}
	return nil
}

func (m *memCache) DeleteResource(ctx context.Context, resource string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.index[resource] {
		delete(m.values, k)
		m.deletes++
	}
	delete(m.index, resource)
	return nil
}

func (m *memCache) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string][]byte)
	m.index = make(map[string]map[string]struct{})
	return nil
}

func (m *memCache) has(key CacheKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key.String()]
	return ok
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
