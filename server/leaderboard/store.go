// Package leaderboard is the single point of mutation for the published
// result set. It owns the result entries and the roster-of-truth, merges
// finish events and manual edits against them, and keeps ranks consistent.
package leaderboard

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/finishcam/finishcam/pkg/idgen"
)

var ErrEntryNotFound = errors.New("entry not found")

// Entry is one row of the leaderboard.
// FinishTime is nil until the racer finishes; Rank is nil until then too.
// Finish time is a float because manual-entry corrections can carry
// sub-millisecond arithmetic from the clock offset.
type Entry struct {
	ID         int64    `json:"id"`
	BibNumber  string   `json:"bibNumber"`
	RacerName  string   `json:"racerName"`
	Gender     string   `json:"gender,omitempty"`
	Team       string   `json:"team,omitempty"`
	FinishTime *float64 `json:"finishTime"`
	Rank       *int     `json:"rank"`

	seq int64 // insertion order, the stable tie-break for equal finish times
}

func (e *Entry) finished() bool {
	return e.FinishTime != nil
}

// Identity is the ancillary identity a manual finish submission may carry.
// All fields optional.
type Identity struct {
	RacerName string
	Gender    string
	Team      string
}

// Patch is a partial update to an entry. Nil fields are left untouched.
type Patch struct {
	BibNumber  *string  `json:"bibNumber"`
	RacerName  *string  `json:"racerName"`
	Gender     *string  `json:"gender"`
	Team       *string  `json:"team"`
	FinishTime *float64 `json:"finishTime"`
}

// Store owns the result set and the roster-of-truth for one race session.
// All methods take the store lock around their full read-modify-write, so
// they are safe to call concurrently from the finish-event pump and from
// request handlers. The store never talks to subscribers itself; callers
// publish notifications after the mutation returns, outside our lock.
type Store struct {
	log     logs.Log
	lock    sync.Mutex
	ids     idgen.Int64
	seqs    idgen.Int64
	entries []*Entry
	roster  map[string]RosterEntry // bib -> identity, not-yet-finished bibs only
}

func NewStore(log logs.Log) *Store {
	return &Store{
		log:    log,
		roster: map[string]RosterEntry{},
	}
}

// RecordFinish records a finish time against a bib number.
// If the bib is pre-registered, only its finish time changes (a later write
// for the same bib overwrites, supporting correction). Otherwise a new
// entry is created from the bib and whatever identity the caller supplied.
// Returns the resulting entry and whether it was newly created.
func (s *Store) RecordFinish(bibNumber string, finishTimeMs float64, identity Identity) (Entry, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if e := s.findByBibLocked(bibNumber); e != nil {
		if e.FinishTime != nil {
			s.log.Infof("Overwriting finish time for bib %v (%.0fms -> %.0fms)", bibNumber, *e.FinishTime, finishTimeMs)
		}
		t := finishTimeMs
		e.FinishTime = &t
		s.recomputeRanksLocked()
		return *e, false
	}

	name := strings.TrimSpace(identity.RacerName)
	if name == "" {
		name = "Racer #" + bibNumber
	}
	t := finishTimeMs
	e := &Entry{
		ID:         s.ids.Next(),
		BibNumber:  bibNumber,
		RacerName:  name,
		Gender:     NormalizeGender(identity.Gender),
		Team:       strings.TrimSpace(identity.Team),
		FinishTime: &t,
		seq:        s.seqs.Next(),
	}
	s.entries = append(s.entries, e)
	s.recomputeRanksLocked()
	return *e, true
}

// UpdateEntry applies a patch to the entry with the given id.
// If the patch changes the bib number and the new bib is in the
// roster-of-truth, the entry's identity fields are re-derived from the
// roster; a non-empty name in the patch still overrides the roster value.
// Returns the updated entry and whether the bib number changed (a bib
// change requires subscribers to reload rather than patch).
func (s *Store) UpdateEntry(id int64, patch Patch) (Entry, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	e := s.findByIDLocked(id)
	if e == nil {
		return Entry{}, false, ErrEntryNotFound
	}

	newBib := e.BibNumber
	if patch.BibNumber != nil {
		newBib = *patch.BibNumber
	}
	bibChanged := newBib != e.BibNumber

	if roster, inRoster := s.roster[newBib]; inRoster {
		// The roster is the source of truth for identity. This corrects
		// the operator error of renumbering a bib and leaving a stale name.
		e.BibNumber = newBib
		e.RacerName = roster.RacerName
		if roster.Gender != "" {
			e.Gender = roster.Gender
		}
		if roster.Team != "" {
			e.Team = roster.Team
		}
		if patch.RacerName != nil && strings.TrimSpace(*patch.RacerName) != "" {
			e.RacerName = *patch.RacerName
		}
	} else {
		e.BibNumber = newBib
		if patch.RacerName != nil {
			e.RacerName = *patch.RacerName
		}
	}
	if patch.Gender != nil {
		e.Gender = NormalizeGender(*patch.Gender)
	}
	if patch.Team != nil {
		e.Team = strings.TrimSpace(*patch.Team)
	}
	if patch.FinishTime != nil {
		t := *patch.FinishTime
		e.FinishTime = &t
		s.recomputeRanksLocked()
	}
	return *e, bibChanged, nil
}

// DeleteEntry removes the entry with the given id and recomputes ranks
func (s *Store) DeleteEntry(id int64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.recomputeRanksLocked()
			return nil
		}
	}
	return ErrEntryNotFound
}

// OrderedID names an entry in a Reorder request
type OrderedID struct {
	ID   int64 `json:"id"`
	Rank int   `json:"rank"`
}

// Reorder replaces the result set with the named entries, in the given
// order. Entries not named in the request are dropped (an intentional
// prune). The given order becomes the new insertion order, so it decides
// ties between equal finish times when ranks are recomputed.
func (s *Store) Reorder(order []OrderedID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	reordered := make([]*Entry, 0, len(order))
	for _, item := range order {
		if e := s.findByIDLocked(item.ID); e != nil {
			e.seq = s.seqs.Next()
			reordered = append(reordered, e)
		}
	}
	s.entries = reordered
	s.recomputeRanksLocked()
}

// List returns a copy of all entries, finished or not, in insertion order
func (s *Store) List() []Entry {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// ListFinished returns all entries with a finish time, ascending by finish
// time. Read-only projection.
func (s *Store) ListFinished() []Entry {
	s.lock.Lock()
	defer s.lock.Unlock()
	finished := s.finishedLocked()
	out := make([]Entry, 0, len(finished))
	for _, e := range finished {
		out = append(out, *e)
	}
	return out
}

// GetEntry returns a copy of the entry with the given id
func (s *Store) GetEntry(id int64) (Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	e := s.findByIDLocked(id)
	if e == nil {
		return Entry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (s *Store) findByIDLocked(id int64) *Entry {
	for _, e := range s.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (s *Store) findByBibLocked(bib string) *Entry {
	for _, e := range s.entries {
		if e.BibNumber == bib {
			return e
		}
	}
	return nil
}

// finishedLocked returns the finished entries sorted by finish time
// ascending, ties broken by insertion order.
func (s *Store) finishedLocked() []*Entry {
	finished := []*Entry{}
	for _, e := range s.entries {
		if e.finished() {
			finished = append(finished, e)
		}
	}
	sort.SliceStable(finished, func(i, j int) bool {
		if *finished[i].FinishTime != *finished[j].FinishTime {
			return *finished[i].FinishTime < *finished[j].FinishTime
		}
		return finished[i].seq < finished[j].seq
	})
	return finished
}

// recomputeRanksLocked reassigns ranks 1..N over the finished entries.
// Called after every mutation that can change the finished set.
func (s *Store) recomputeRanksLocked() {
	for rank, e := range s.finishedLocked() {
		r := rank + 1
		e.Rank = &r
	}
}
