package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/linchuan/factorhub/internal/frame"
)

// Store owns, per security, a set of named fields at heterogeneous native
// frequencies and exposes them as daily-aligned views that are
// point-in-time correct: a cell on date D only ever reflects observations
// whose visible date is on or before D.
//
// The store is loaded front-up, then frozen; all consumers read it.
type Store struct {
	calendar *frame.Calendar
	universe []string
	fields   map[string]*fieldData
	frozen   bool
}

// fieldData holds the native observations of one field plus the derived
// view caches. generation is bumped on every append; caches carry the
// generation they were built from and are discarded on mismatch.
type fieldData struct {
	spec FieldSpec
	obs  map[string][]Observation

	generation   uint64
	alignedGen   uint64
	alignedCache *frame.Frame
	rawGen       uint64
	rawCache     *frame.Frame
}

// New creates a Store over a trading calendar and a universe snapshot.
// Identifiers must be unique; they are never reused for a different issuer.
func New(calendar *frame.Calendar, universe []string) (*Store, error) {
	if calendar == nil || calendar.Len() == 0 {
		return nil, fmt.Errorf("store: empty trading calendar")
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("store: empty universe")
	}

	secs := make([]string, len(universe))
	copy(secs, universe)
	sort.Strings(secs)
	for i := 1; i < len(secs); i++ {
		if secs[i] == secs[i-1] {
			return nil, fmt.Errorf("store: duplicate security %q", secs[i])
		}
	}

	return &Store{
		calendar: calendar,
		universe: secs,
		fields:   make(map[string]*fieldData),
	}, nil
}

// RegisterField adds a field descriptor to the closed registry. Unregistered
// names are rejected at the store boundary when accessed.
func (s *Store) RegisterField(spec FieldSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, exists := s.fields[spec.Name]; exists {
		return fmt.Errorf("store: field %q already registered", spec.Name)
	}
	s.fields[spec.Name] = &fieldData{
		spec: spec,
		obs:  make(map[string][]Observation),
	}
	return nil
}

// Append adds native observations to a registered field. New periods append;
// a repeated (security, period end) pair supersedes the earlier value
// (correction/restatement). Appending bumps the field's generation, which
// invalidates derived view caches.
func (s *Store) Append(field string, observations []Observation) error {
	if s.frozen {
		return fmt.Errorf("store: append %q: %w", field, ErrFrozen)
	}
	fd, ok := s.fields[field]
	if !ok {
		return fmt.Errorf("store: %w: %q", ErrUnknownField, field)
	}

	for _, o := range observations {
		if !s.hasSecurity(o.Security) {
			return fmt.Errorf("store: append %q: %w: %q", field, ErrUnknownSecurity, o.Security)
		}
	}

	for _, o := range observations {
		o.PeriodEnd = dateOnly(o.PeriodEnd)
		col := fd.obs[o.Security]
		replaced := false
		for i := range col {
			if col[i].PeriodEnd.Equal(o.PeriodEnd) {
				col[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			col = append(col, o)
		}
		fd.obs[o.Security] = col
	}

	fd.generation++
	return nil
}

// Freeze marks the snapshot complete. Subsequent Append calls fail, which
// is how read-only access for strategies and engines is enforced.
func (s *Store) Freeze() { s.frozen = true }

// Frozen reports whether the snapshot is complete.
func (s *Store) Frozen() bool { return s.frozen }

// Calendar returns the registered trading-day calendar.
func (s *Store) Calendar() *frame.Calendar { return s.calendar }

// Universe returns the active universe snapshot.
func (s *Store) Universe() []string {
	out := make([]string, len(s.universe))
	copy(out, s.universe)
	return out
}

// Fields returns the registered field names, sorted.
func (s *Store) Fields() []string {
	out := make([]string, 0, len(s.fields))
	for name := range s.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spec returns the descriptor of a registered field.
func (s *Store) Spec(field string) (FieldSpec, error) {
	fd, ok := s.fields[field]
	if !ok {
		return FieldSpec{}, fmt.Errorf("store: %w: %q", ErrUnknownField, field)
	}
	return fd.spec, nil
}

func (s *Store) hasSecurity(id string) bool {
	i := sort.SearchStrings(s.universe, id)
	return i < len(s.universe) && s.universe[i] == id
}

// getOptions collects the Get call options.
type getOptions struct {
	security string
	raw      bool
}

// GetOption customizes a Get call.
type GetOption func(*getOptions)

// WithSecurity restricts the result to a single security column.
func WithSecurity(id string) GetOption {
	return func(o *getOptions) { o.security = id }
}

// Raw returns the native-frequency matrix instead of the aligned view.
func Raw() GetOption {
	return func(o *getOptions) { o.raw = true }
}

// Get returns a field as a matrix. By default it returns the daily-aligned,
// forward-filled, point-in-time-correct view over the full universe; Raw()
// returns the native-frequency matrix; WithSecurity() selects one column.
//
// The returned frame is the caller's copy. Writing to it never reaches the
// store cache, so a misbehaving strategy cannot poison later reads.
func (s *Store) Get(field string, opts ...GetOption) (*frame.Frame, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	fd, ok := s.fields[field]
	if !ok {
		return nil, fmt.Errorf("store: %w: %q", ErrUnknownField, field)
	}
	if o.security != "" && !s.hasSecurity(o.security) {
		return nil, fmt.Errorf("store: %w: %q", ErrUnknownSecurity, o.security)
	}

	var (
		f   *frame.Frame
		err error
	)
	if o.raw {
		f = s.rawView(fd)
	} else {
		f, err = s.alignedView(fd)
		if err != nil {
			return nil, err
		}
	}

	if o.security != "" {
		return f.SelectSecurities([]string{o.security}), nil
	}
	return f.Clone(), nil
}

// rawView builds (or reuses) the native-frequency matrix: rows are the
// union of period-end dates across securities.
func (s *Store) rawView(fd *fieldData) *frame.Frame {
	if fd.rawCache != nil && fd.rawGen == fd.generation {
		return fd.rawCache
	}

	seen := make(map[int64]time.Time)
	for _, col := range fd.obs {
		for _, o := range col {
			seen[o.PeriodEnd.Unix()] = o.PeriodEnd
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	f, _ := frame.New(dates, s.universe)
	for sec, col := range fd.obs {
		j := f.ColIndex(sec)
		for _, o := range col {
			f.Set(f.RowIndex(o.PeriodEnd), j, o.Value)
		}
	}

	fd.rawCache = f
	fd.rawGen = fd.generation
	return f
}

// visibleObs is an observation keyed by the date it becomes knowable.
type visibleObs struct {
	visible   time.Time
	periodEnd time.Time
	value     float64
}

// alignedView builds (or reuses) the daily point-in-time view per the
// alignment algorithm: shift to visible dates, reindex on the trading
// calendar, forward-fill until superseded or stale.
func (s *Store) alignedView(fd *fieldData) (*frame.Frame, error) {
	if fd.alignedCache != nil && fd.alignedGen == fd.generation {
		return fd.alignedCache, nil
	}

	days := s.calendar.Days()
	f, _ := frame.New(days, s.universe)
	staleDays := fd.spec.staleness()

	for sec, col := range fd.obs {
		if len(col) == 0 {
			continue // all-missing column, not an error
		}
		j := f.ColIndex(sec)

		vos := make([]visibleObs, 0, len(col))
		for _, o := range col {
			vos = append(vos, visibleObs{
				visible:   o.visibleDate(fd.spec),
				periodEnd: o.PeriodEnd,
				value:     o.Value,
			})
		}
		// Sort by visible date; on a shared visible date the later period
		// end wins (restatement), so it must sort last.
		sort.Slice(vos, func(a, b int) bool {
			if !vos[a].visible.Equal(vos[b].visible) {
				return vos[a].visible.Before(vos[b].visible)
			}
			return vos[a].periodEnd.Before(vos[b].periodEnd)
		})

		k := 0
		var cur *visibleObs
		for i, day := range days {
			for k < len(vos) && !vos[k].visible.After(day) {
				// A later visible date always supersedes; within one visible
				// date the sort order makes the later period end land last.
				cur = &vos[k]
				k++
			}
			if cur == nil {
				continue
			}
			if cur.visible.After(day) {
				// Defensive: the sweep above makes this unreachable unless
				// the store itself is broken. Abort, never correct silently.
				return nil, &LookaheadError{
					Field:       fd.spec.Name,
					Security:    sec,
					QueryDate:   day,
					VisibleDate: cur.visible,
				}
			}
			if int(day.Sub(cur.visible).Hours()/24) > staleDays {
				continue // stale, cell reverts to missing
			}
			f.Set(i, j, cur.value)
		}
	}

	fd.alignedCache = f
	fd.alignedGen = fd.generation
	return f, nil
}
