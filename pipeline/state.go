package pipeline

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sarpras-dashboard/sarpras-sync/metrics"
)

// Outcome is the fate of one record for one entity.
type Outcome string

const (
	OK   Outcome = "ok"
	Skip Outcome = "skip"
	Fail Outcome = "fail"
)

// Run counters kept on State.
const (
	CounterZeroSkipped        = "zero_skipped"
	CounterNoIdentity         = "no_identity"
	CounterUnresolved         = "unresolved"
	CounterInvalidRows        = "invalid_rows"
	CounterSourcesUnavailable = "sources_unavailable"
)

// recordOutcomes keeps one outcome per record across entities. A record is
// OK when any entity mapped it, FAIL when none did and one failed, and
// SKIP otherwise.
type recordOutcomes []Outcome

var outcomeRank = map[Outcome]int{Skip: 1, Fail: 2, OK: 3}

func (ro recordOutcomes) note(i int, o Outcome) {
	if outcomeRank[o] > outcomeRank[ro[i]] {
		ro[i] = o
	}
}

// flush adds the outcome of every noted record to its source.
func (ro recordOutcomes) flush(s *Summary, sourceOf func(int) string) {
	for i, o := range ro {
		if o != "" {
			s.Source(sourceOf(i), o, 1)
		}
	}
}

// Counts holds the outcome counts of one entity or source.
type Counts struct {
	OK   int
	Skip int
	Fail int
}

func (c *Counts) add(o Outcome, n int) {
	switch o {
	case OK:
		c.OK += n
	case Skip:
		c.Skip += n
	case Fail:
		c.Fail += n
	}
}

// Summary tracks outcomes per entity and per source. It is safe for
// concurrent use since entity syncs run in parallel.
//
// Entity counts combine mapping skips and failures with write results;
// source counts reflect mapping only.
type Summary struct {
	mu       sync.Mutex
	driver   string
	entities map[string]*Counts
	sources  map[string]*Counts
	order    []string
}

// NewSummary creates a summary for a driver.
func NewSummary(driver string) *Summary {
	return &Summary{
		driver:   driver,
		entities: make(map[string]*Counts),
		sources:  make(map[string]*Counts),
	}
}

// Declare lists entities in print order, so entities that saw no records
// still print a zero line.
func (s *Summary) Declare(entities ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entityLocked(e)
	}
}

func (s *Summary) entityLocked(name string) *Counts {
	c, ok := s.entities[name]
	if !ok {
		c = &Counts{}
		s.entities[name] = c
		s.order = append(s.order, name)
	}
	return c
}

// Entity adds n outcomes to an entity.
func (s *Summary) Entity(name string, o Outcome, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.entityLocked(name).add(o, n)
	s.mu.Unlock()
	metrics.RecordOutcome(s.driver, name, string(o), n)
}

// Source adds n outcomes to a source.
func (s *Summary) Source(name string, o Outcome, n int) {
	if n <= 0 || name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sources[name]
	if !ok {
		c = &Counts{}
		s.sources[name] = c
	}
	c.add(o, n)
}

// Record counts one record outcome against both its entity and its source.
func (s *Summary) Record(entity, source string, o Outcome) {
	s.Entity(entity, o, 1)
	s.Source(source, o, 1)
}

// EntityCounts returns the counts of an entity.
func (s *Summary) EntityCounts(name string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.entities[name]; ok {
		return *c
	}
	return Counts{}
}

// SourceCounts returns the counts of a source.
func (s *Summary) SourceCounts(name string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sources[name]; ok {
		return *c
	}
	return Counts{}
}

// Failed reports whether any entity has failures.
func (s *Summary) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.entities {
		if c.Fail > 0 {
			return true
		}
	}
	return false
}

// Print writes one line per entity, then one per source.
func (s *Summary) Print(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		c := s.entities[name]
		fmt.Fprintf(w, "entity=%s OK=%d SKIP=%d FAIL=%d\n", name, c.OK, c.Skip, c.Fail)
	}
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := s.sources[name]
		fmt.Fprintf(w, "source=%s OK=%d SKIP=%d FAIL=%d\n", name, c.OK, c.Skip, c.Fail)
	}
}

// State is the per-run context passed through a driver.
type State struct {
	RunID   string
	Driver  string
	Summary *Summary

	mu       sync.Mutex
	counters map[string]int
}

// NewState creates the state of one driver run.
func NewState(runID, driver string) *State {
	return &State{
		RunID:    runID,
		Driver:   driver,
		Summary:  NewSummary(driver),
		counters: make(map[string]int),
	}
}

// Inc adds n to a named counter.
func (st *State) Inc(name string, n int) {
	st.mu.Lock()
	st.counters[name] += n
	st.mu.Unlock()
}

// Counter returns a named counter.
func (st *State) Counter(name string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.counters[name]
}

// Counters returns a copy of every counter.
func (st *State) Counters() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[string]int, len(st.counters))
	for k, v := range st.counters {
		out[k] = v
	}
	return out
}
