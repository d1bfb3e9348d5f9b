// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"searchcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// ExperimentVersion aliases domain.ExperimentVersion for in-memory persistence operations.
	ExperimentVersion = domain.ExperimentVersion
	// Trial aliases domain.Trial.
	Trial = domain.Trial
	// Worker aliases domain.Worker.
	Worker = domain.Worker
	// Resource aliases domain.Resource.
	Resource = domain.Resource
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	experiments map[string]ExperimentVersion
	trials      map[string]Trial
	workers     map[string]Worker
	resources   map[string]Resource // keyed by alias
	trialSeq    int64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Experiments map[string]ExperimentVersion `json:"experiments"`
	Trials      map[string]Trial             `json:"trials"`
	Workers     map[string]Worker            `json:"workers"`
	Resources   map[string]Resource          `json:"resources"`
	TrialSeq    int64                        `json:"trial_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		experiments: make(map[string]ExperimentVersion),
		trials:      make(map[string]Trial),
		workers:     make(map[string]Worker),
		resources:   make(map[string]Resource),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.trialSeq = s.trialSeq
	for k, v := range s.experiments {
		cloned.experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.trials {
		cloned.trials[k] = cloneTrial(v)
	}
	for k, v := range s.workers {
		cloned.workers[k] = v
	}
	for k, v := range s.resources {
		cloned.resources[k] = v
	}
	return cloned
}

func cloneExperiment(e ExperimentVersion) ExperimentVersion {
	cp := e
	cp.Refers.Adapter = append([]domain.AdapterStep(nil), e.Refers.Adapter...)
	cp.Metadata.ScriptArgs = append([]string(nil), e.Metadata.ScriptArgs...)
	if e.Algorithm != nil {
		cp.Algorithm = append([]byte(nil), e.Algorithm...)
	}
	return cp
}

func cloneTrial(t Trial) Trial {
	cp := t
	cp.Params = append([]domain.Param(nil), t.Params...)
	cp.ParentParams = append([]domain.Param(nil), t.ParentParams...)
	cp.Results = append([]domain.TrialResult(nil), t.Results...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the store clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

type storeTx struct {
	state   *memoryState
	changes []Change
	now     time.Time
}

var _ Transaction = (*storeTx)(nil)

type storeView struct {
	state *memoryState
}

var (
	_ TransactionView = storeView{}
	_ domain.RuleView = storeView{}
)

// RunInTransaction executes fn within a transactional copy of the store state.
// The state swap happens only after fn succeeds and no blocking rule fires,
// so concurrent callers observe either all of a transaction or none of it.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	tx := &storeTx{state: &next, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := storeView{state: &next}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = next
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(storeView{state: &snapshot})
}

// ExportState returns a deep copy of the current committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Experiments: make(map[string]ExperimentVersion, len(s.state.experiments)),
		Trials:      make(map[string]Trial, len(s.state.trials)),
		Workers:     make(map[string]Worker, len(s.state.workers)),
		Resources:   make(map[string]Resource, len(s.state.resources)),
		TrialSeq:    s.state.trialSeq,
	}
	for k, v := range s.state.experiments {
		snap.Experiments[k] = cloneExperiment(v)
	}
	for k, v := range s.state.trials {
		snap.Trials[k] = cloneTrial(v)
	}
	for k, v := range s.state.workers {
		snap.Workers[k] = v
	}
	for k, v := range s.state.resources {
		snap.Resources[k] = v
	}
	return snap
}

// ImportState replaces the committed state with the provided snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	state.trialSeq = snap.TrialSeq
	for k, v := range snap.Experiments {
		state.experiments[k] = cloneExperiment(v)
	}
	for k, v := range snap.Trials {
		state.trials[k] = cloneTrial(v)
		if v.Seq > state.trialSeq {
			state.trialSeq = v.Seq
		}
	}
	for k, v := range snap.Workers {
		state.workers[k] = v
	}
	for k, v := range snap.Resources {
		state.resources[k] = v
	}
	s.state = state
}

func (tx *storeTx) record(change Change) {
	tx.changes = append(tx.changes, change)
}

// CreateExperiment stores a new experiment version within the transaction.
func (tx *storeTx) CreateExperiment(e ExperimentVersion) (ExperimentVersion, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	if _, exists := tx.state.experiments[e.ID]; exists {
		return ExperimentVersion{}, fmt.Errorf("experiment %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.experiments[e.ID] = cloneExperiment(e)
	tx.record(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: cloneExperiment(e)})
	return cloneExperiment(e), nil
}

// UpdateExperiment mutates an experiment version using the provided mutator.
func (tx *storeTx) UpdateExperiment(id string, mutator func(*ExperimentVersion) error) (ExperimentVersion, error) {
	current, ok := tx.state.experiments[id]
	if !ok {
		return ExperimentVersion{}, fmt.Errorf("experiment %q not found", id)
	}
	before := cloneExperiment(current)
	if err := mutator(&current); err != nil {
		return ExperimentVersion{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.experiments[id] = cloneExperiment(current)
	tx.record(Change{Entity: domain.EntityExperiment, Action: domain.ActionUpdate, Before: before, After: cloneExperiment(current)})
	return cloneExperiment(current), nil
}

// CreateTrial stores a new trial, assigning its insertion sequence number.
func (tx *storeTx) CreateTrial(t Trial) (Trial, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if _, exists := tx.state.trials[t.ID]; exists {
		return Trial{}, fmt.Errorf("trial %q already exists", t.ID)
	}
	tx.state.trialSeq++
	t.Seq = tx.state.trialSeq
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	if t.SubmitTime.IsZero() {
		t.SubmitTime = tx.now
	}
	tx.state.trials[t.ID] = cloneTrial(t)
	tx.record(Change{Entity: domain.EntityTrial, Action: domain.ActionCreate, After: cloneTrial(t)})
	return cloneTrial(t), nil
}

// UpdateTrial mutates a trial using the provided mutator. Trial identity,
// sequence number and experiment ownership are immutable.
func (tx *storeTx) UpdateTrial(id string, mutator func(*Trial) error) (Trial, error) {
	current, ok := tx.state.trials[id]
	if !ok {
		return Trial{}, fmt.Errorf("trial %q not found", id)
	}
	before := cloneTrial(current)
	if err := mutator(&current); err != nil {
		return Trial{}, err
	}
	current.ID = id
	current.Seq = before.Seq
	current.ExperimentID = before.ExperimentID
	current.UpdatedAt = tx.now
	tx.state.trials[id] = cloneTrial(current)
	tx.record(Change{Entity: domain.EntityTrial, Action: domain.ActionUpdate, Before: before, After: cloneTrial(current)})
	return cloneTrial(current), nil
}

// CreateWorker stores a new worker record.
func (tx *storeTx) CreateWorker(w Worker) (Worker, error) {
	if w.ID == "" {
		w.ID = newID()
	}
	if _, exists := tx.state.workers[w.ID]; exists {
		return Worker{}, fmt.Errorf("worker %q already exists", w.ID)
	}
	w.CreatedAt = tx.now
	w.UpdatedAt = tx.now
	tx.state.workers[w.ID] = w
	tx.record(Change{Entity: domain.EntityWorker, Action: domain.ActionCreate, After: w})
	return w, nil
}

// UpdateWorker mutates a worker record. Workers are never deleted.
func (tx *storeTx) UpdateWorker(id string, mutator func(*Worker) error) (Worker, error) {
	current, ok := tx.state.workers[id]
	if !ok {
		return Worker{}, fmt.Errorf("worker %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Worker{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.workers[id] = current
	tx.record(Change{Entity: domain.EntityWorker, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateResource stores a new resource record keyed by alias.
func (tx *storeTx) CreateResource(r Resource) (Resource, error) {
	if r.Alias == "" {
		return Resource{}, fmt.Errorf("resource alias required")
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.resources[r.Alias]; exists {
		return Resource{}, fmt.Errorf("resource %q already exists", r.Alias)
	}
	if r.MaxConcurrent <= 0 {
		return Resource{}, fmt.Errorf("resource %q max_concurrent must be positive", r.Alias)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.resources[r.Alias] = r
	tx.record(Change{Entity: domain.EntityResource, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateResource mutates a resource record.
func (tx *storeTx) UpdateResource(alias string, mutator func(*Resource) error) (Resource, error) {
	current, ok := tx.state.resources[alias]
	if !ok {
		return Resource{}, fmt.Errorf("resource %q not found", alias)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Resource{}, err
	}
	current.Alias = alias
	current.UpdatedAt = tx.now
	if current.MaxConcurrent <= 0 {
		return Resource{}, fmt.Errorf("resource %q max_concurrent must be positive", alias)
	}
	tx.state.resources[alias] = current
	tx.record(Change{Entity: domain.EntityResource, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// FindExperiment retrieves an experiment version from the transaction state.
func (tx *storeTx) FindExperiment(id string) (ExperimentVersion, bool) {
	return storeView{state: tx.state}.FindExperiment(id)
}

// FindTrial retrieves a trial from the transaction state.
func (tx *storeTx) FindTrial(id string) (Trial, bool) {
	return storeView{state: tx.state}.FindTrial(id)
}

// FindWorker retrieves a worker from the transaction state.
func (tx *storeTx) FindWorker(id string) (Worker, bool) {
	return storeView{state: tx.state}.FindWorker(id)
}

// FindResource retrieves a resource from the transaction state.
func (tx *storeTx) FindResource(alias string) (Resource, bool) {
	return storeView{state: tx.state}.FindResource(alias)
}

// ListTrialsByExperiment lists the experiment's trials within the transaction.
func (tx *storeTx) ListTrialsByExperiment(experimentID string) []Trial {
	return storeView{state: tx.state}.ListTrialsByExperiment(experimentID)
}

// ListWorkers lists all workers within the transaction.
func (tx *storeTx) ListWorkers() []Worker {
	return storeView{state: tx.state}.ListWorkers()
}

// View accessors -------------------------------------------------------------

// ListExperiments returns all experiment versions within the snapshot.
func (v storeView) ListExperiments() []ExperimentVersion {
	out := make([]ExperimentVersion, 0, len(v.state.experiments))
	for _, e := range v.state.experiments {
		out = append(out, cloneExperiment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListTrials returns all trials within the snapshot in insertion order.
func (v storeView) ListTrials() []Trial {
	out := make([]Trial, 0, len(v.state.trials))
	for _, t := range v.state.trials {
		out = append(out, cloneTrial(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ListWorkers returns all workers within the snapshot.
func (v storeView) ListWorkers() []Worker {
	out := make([]Worker, 0, len(v.state.workers))
	for _, w := range v.state.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListResources returns all resources within the snapshot.
func (v storeView) ListResources() []Resource {
	out := make([]Resource, 0, len(v.state.resources))
	for _, r := range v.state.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// FindExperiment retrieves an experiment version by ID from the snapshot.
func (v storeView) FindExperiment(id string) (ExperimentVersion, bool) {
	e, ok := v.state.experiments[id]
	if !ok {
		return ExperimentVersion{}, false
	}
	return cloneExperiment(e), true
}

// FindTrial retrieves a trial by ID from the snapshot.
func (v storeView) FindTrial(id string) (Trial, bool) {
	t, ok := v.state.trials[id]
	if !ok {
		return Trial{}, false
	}
	return cloneTrial(t), true
}

// FindWorker retrieves a worker by ID from the snapshot.
func (v storeView) FindWorker(id string) (Worker, bool) {
	w, ok := v.state.workers[id]
	if !ok {
		return Worker{}, false
	}
	return w, true
}

// FindResource retrieves a resource by alias from the snapshot.
func (v storeView) FindResource(alias string) (Resource, bool) {
	r, ok := v.state.resources[alias]
	if !ok {
		return Resource{}, false
	}
	return r, true
}

// ListTrialsByExperiment returns the experiment's trials ordered by submit
// time ascending, then by insertion sequence number.
func (v storeView) ListTrialsByExperiment(experimentID string) []Trial {
	var out []Trial
	for _, t := range v.state.trials {
		if t.ExperimentID == experimentID {
			out = append(out, cloneTrial(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmitTime.Equal(out[j].SubmitTime) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].SubmitTime.Before(out[j].SubmitTime)
	})
	return out
}

// Read helpers ---------------------------------------------------------------

// GetExperiment retrieves an experiment version by ID from committed state.
func (s *Store) GetExperiment(id string) (ExperimentVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.FindExperiment(id)
}

// ListExperiments returns all experiment versions from committed state.
func (s *Store) ListExperiments() []ExperimentVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.ListExperiments()
}

// GetTrial retrieves a trial by ID from committed state.
func (s *Store) GetTrial(id string) (Trial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.FindTrial(id)
}

// ListTrialsByExperiment returns an experiment's trials from committed state.
func (s *Store) ListTrialsByExperiment(experimentID string) []Trial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.ListTrialsByExperiment(experimentID)
}

// GetWorker retrieves a worker by ID from committed state.
func (s *Store) GetWorker(id string) (Worker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.FindWorker(id)
}

// ListWorkers returns all workers from committed state.
func (s *Store) ListWorkers() []Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.ListWorkers()
}

// GetResource retrieves a resource by alias from committed state.
func (s *Store) GetResource(alias string) (Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.FindResource(alias)
}

// ListResources returns all resources from committed state.
func (s *Store) ListResources() []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeView{state: &s.state}.ListResources()
}
