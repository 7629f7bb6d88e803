package fundingcalls

import "sync"

// Overrides holds manual relevance corrections for one dashboard session.
// They live in memory only.
type Overrides struct {
	mu sync.RWMutex
	m  map[int64]bool
}

func NewOverrides() *Overrides {
	return &Overrides{m: make(map[int64]bool)}
}

func (o *Overrides) Set(id int64, relevant bool) {
	o.mu.Lock()
	o.m[id] = relevant
	o.mu.Unlock()
}

func (o *Overrides) Clear(id int64) {
	o.mu.Lock()
	delete(o.m, id)
	o.mu.Unlock()
}

// Reset drops every override.
func (o *Overrides) Reset() {
	o.mu.Lock()
	o.m = make(map[int64]bool)
	o.mu.Unlock()
}

func (o *Overrides) Get(id int64) (relevant, ok bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	relevant, ok = o.m[id]
	return relevant, ok
}

func (o *Overrides) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.m)
}

// Effective returns the override for call if there is one, else the computed flag.
func (o *Overrides) Effective(call NormalizedFundingCall) bool {
	if o != nil {
		if v, ok := o.Get(call.ID); ok {
			return v
		}
	}
	return call.RelevanceInfo.IsRelevant
}

type ViewRow struct {
	NormalizedFundingCall
	EffectiveRelevant bool `json:"effective_relevant"`
	Overridden        bool `json:"overridden"`
}

// View is the filtered grid for one session.
type View struct {
	Rows         []ViewRow `json:"rows"`
	Shown        int       `json:"shown"`
	Total        int       `json:"total"`
	OnlyRelevant bool      `json:"only_relevant"`
}

// BuildView applies overrides and the only-relevant filter, keeping the
// input order.
func BuildView(calls []NormalizedFundingCall, overrides *Overrides, onlyRelevant bool) View {
	v := View{Rows: []ViewRow{}, Total: len(calls), OnlyRelevant: onlyRelevant}
	for _, c := range calls {
		effective := overrides.Effective(c)
		if onlyRelevant && !effective {
			continue
		}
		var overridden bool
		if overrides != nil {
			_, overridden = overrides.Get(c.ID)
		}
		v.Rows = append(v.Rows, ViewRow{
			NormalizedFundingCall: c,
			EffectiveRelevant:     effective,
			Overridden:            overridden,
		})
	}
	v.Shown = len(v.Rows)
	return v
}
