package engine

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrUnknownGroup = errors.New("unknown group")
var ErrInvalidCounter = errors.New("invalid counter")
var ErrInvalidInput = errors.New("invalid input")
var ErrInvalidTemplate = errors.New("invalid group template")
var ErrUnsupportedCommand = errors.New("unsupported command")

// MaxTicket is the largest value an administrative override may set.
const MaxTicket = 1_000_000_000

type CommandType string

const (
	CmdAllocate CommandType = "Allocate"
	CmdReset    CommandType = "Reset"
	CmdSetStart CommandType = "SetStart"
)

/*
	CmdAllocate -> counters[counter] = nextTicket, nextTicket++, lastCall = {ticket, counter, now}
	CmdReset    -> group rebuilt from its template (nextTicket 1, every counter none, no lastCall)
	CmdSetStart -> nextTicket = floor(startNumber); counters and lastCall untouched
*/

type Command struct {
	Type        CommandType
	GroupID     string
	CounterID   string
	StartNumber string
}

type Result struct {
	Type   CommandType
	Ticket int // CmdAllocate only
	Group  Group
}

type LastCall struct {
	Ticket    int       `json:"ticket"`
	CounterID string    `json:"counterId"`
	At        time.Time `json:"at"`
}

type Group struct {
	ID         string    `json:"id"`
	NextTicket int       `json:"nextTicket"`
	Counters   Counters  `json:"counters"`
	LastCall   *LastCall `json:"lastCall"`
}

// Serving reports the ticket a counter is serving; 0 means none.
func (g Group) Serving(counterID string) (int, bool) {
	i := g.Counters.index(counterID)
	if i < 0 {
		return 0, false
	}
	return g.Counters[i].Serving, true
}

func (g Group) clone() Group {
	c := g
	c.Counters = slices.Clone(g.Counters)
	if g.LastCall != nil {
		lc := *g.LastCall
		c.LastCall = &lc
	}
	return c
}

type Snapshot struct {
	DefaultGroup string  `json:"defaultGroup"`
	Groups       []Group `json:"groups"`
}

func (s Snapshot) Group(id string) (Group, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// Registry holds every queue group. It is not safe for concurrent use:
// the hub goroutine is its only writer.
type Registry struct {
	templates []GroupTemplate
	groups    []Group
	index     map[string]int
}

func NewRegistry(templates []GroupTemplate) (*Registry, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: no groups configured", ErrInvalidTemplate)
	}

	r := &Registry{
		templates: make([]GroupTemplate, 0, len(templates)),
		groups:    make([]Group, 0, len(templates)),
		index:     make(map[string]int, len(templates)),
	}
	for _, t := range templates {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate group %q", ErrInvalidTemplate, t.ID)
		}
		t = t.clone()
		r.index[t.ID] = len(r.groups)
		r.templates = append(r.templates, t)
		r.groups = append(r.groups, NewGroup(t))
	}
	return r, nil
}

func (r *Registry) DefaultGroupID() string { return r.groups[0].ID }

// Resolve maps an absent or unrecognized group id onto the default group.
func (r *Registry) Resolve(groupID string) string {
	if _, ok := r.index[groupID]; ok {
		return groupID
	}
	return r.DefaultGroupID()
}

func (r *Registry) Has(groupID string) bool {
	_, ok := r.index[groupID]
	return ok
}

func (r *Registry) Group(groupID string) (Group, error) {
	i, ok := r.index[groupID]
	if !ok {
		return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	return r.groups[i].clone(), nil
}

func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		DefaultGroup: r.DefaultGroupID(),
		Groups:       make([]Group, len(r.groups)),
	}
	for i, g := range r.groups {
		s.Groups[i] = g.clone()
	}
	return s
}

// Allocate hands the group's next ticket to counterID.
func (r *Registry) Allocate(groupID, counterID string, now time.Time) (int, Group, error) {
	i, ok := r.index[groupID]
	if !ok {
		return 0, Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	g := &r.groups[i]
	c := g.Counters.index(counterID)
	if c < 0 {
		return 0, Group{}, fmt.Errorf("%w: %q in group %q", ErrInvalidCounter, counterID, groupID)
	}

	ticket := g.NextTicket
	g.Counters[c].Serving = ticket
	g.NextTicket = ticket + 1
	g.LastCall = &LastCall{Ticket: ticket, CounterID: counterID, At: now}
	return ticket, g.clone(), nil
}

func (r *Registry) Reset(groupID string) (Group, error) {
	i, ok := r.index[groupID]
	if !ok {
		return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	r.groups[i] = NewGroup(r.templates[i])
	return r.groups[i].clone(), nil
}

// SetStart overrides nextTicket. Collisions with already issued tickets are
// the operator's call, not checked here.
func (r *Registry) SetStart(groupID, startNumber string) (Group, error) {
	i, ok := r.index[groupID]
	if !ok {
		return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, groupID)
	}
	n, err := ParseStartNumber(startNumber)
	if err != nil {
		return Group{}, err
	}
	r.groups[i].NextTicket = n
	return r.groups[i].clone(), nil
}

func Apply(r *Registry, cmd Command, now time.Time) (Result, error) {
	switch cmd.Type {
	case CmdAllocate:
		ticket, g, err := r.Allocate(cmd.GroupID, cmd.CounterID, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: cmd.Type, Ticket: ticket, Group: g}, nil

	case CmdReset:
		g, err := r.Reset(cmd.GroupID)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: cmd.Type, Group: g}, nil

	case CmdSetStart:
		g, err := r.SetStart(cmd.GroupID, cmd.StartNumber)
		if err != nil {
			return Result{}, err
		}
		return Result{Type: cmd.Type, Group: g}, nil

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}
}

// ParseStartNumber accepts any finite decimal >= 1 and floors it.
func ParseStartNumber(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty start number", ErrInvalidInput)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: start number %v below 1", ErrInvalidInput, n)
	}
	n = math.Floor(n)
	if n > MaxTicket {
		return 0, fmt.Errorf("%w: start number %v above %d", ErrInvalidInput, n, MaxTicket)
	}
	return int(n), nil
}
