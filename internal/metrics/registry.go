package metrics

import (
	"slices"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

// Kind is the value semantics of a metric family.
type Kind int

const (
	// KindCounter values only grow.
	KindCounter Kind = iota
	// KindGauge values are set to the latest reading.
	KindGauge
	// KindDuration holds the most recently observed duration in seconds per label set.
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Desc declares a metric family.
type Desc struct {
	Name       string
	Help       string
	Kind       Kind
	LabelNames []string
}

func (d Desc) equal(o Desc) bool {
	return d.Name == o.Name && d.Help == o.Help && d.Kind == o.Kind && slices.Equal(d.LabelNames, o.LabelNames)
}

var (
	ErrDuplicateMetric  = ferrors.RegistryError("metric already declared with a different schema").Build()
	ErrInvalidDesc      = ferrors.RegistryError("invalid metric description").Build()
	ErrUnknownMetric    = ferrors.RegistryError("metric not declared").Build()
	ErrNegativeDelta    = ferrors.RegistryError("counter delta must not be negative").Build()
	ErrKindMismatch     = ferrors.RegistryError("operation does not match metric kind").Build()
	ErrLabelMismatch    = ferrors.RegistryError("label values do not match declared label names").Build()
	ErrNegativeDuration = ferrors.RegistryError("duration must not be negative").Build()
)

const labelSep = "\xff"

type family struct {
	desc    Desc
	order   []string
	samples map[string]*sample
}

type sample struct {
	labelValues []string
	value       float64
}

// Registry owns every metric family and its current values. A single mutex
// guards mutations and snapshots so a scrape never sees a half-applied update.
type Registry struct {
	mu       sync.Mutex
	order    []string
	families map[string]*family
	now      func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string]*family),
		now:      time.Now,
	}
}

// Declare registers a family. Declaring the same schema twice is a no-op.
func (r *Registry) Declare(d Desc) error {
	if err := validateDesc(d); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.families[d.Name]; ok {
		if existing.desc.equal(d) {
			return nil
		}
		return ErrDuplicateMetric.WithContext("metric", d.Name)
	}

	d.LabelNames = slices.Clone(d.LabelNames)
	r.families[d.Name] = &family{desc: d, samples: make(map[string]*sample)}
	r.order = append(r.order, d.Name)
	return nil
}

// MustDeclare is Declare for startup code; it panics on error.
func (r *Registry) MustDeclare(descs ...Desc) {
	for _, d := range descs {
		if err := r.Declare(d); err != nil {
			panic(err)
		}
	}
}

func validateDesc(d Desc) error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidDesc.WithContext("reason", "empty name")
	}
	switch d.Kind {
	case KindCounter, KindGauge, KindDuration:
	default:
		return ErrInvalidDesc.WithContext("metric", d.Name).WithContext("reason", "unknown kind")
	}
	seen := make(map[string]struct{}, len(d.LabelNames))
	for _, l := range d.LabelNames {
		if l == "" {
			return ErrInvalidDesc.WithContext("metric", d.Name).WithContext("reason", "empty label name")
		}
		if _, dup := seen[l]; dup {
			return ErrInvalidDesc.WithContext("metric", d.Name).WithContext("label", l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// Descs returns the declared families in declaration order.
func (r *Registry) Descs() []Desc {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Desc, 0, len(r.order))
	for _, name := range r.order {
		d := r.families[name].desc
		d.LabelNames = slices.Clone(d.LabelNames)
		out = append(out, d)
	}
	return out
}

// Update is one mutation applied by Apply. Counters add Value, gauges and
// durations replace it.
type Update struct {
	Name        string
	Kind        Kind
	LabelValues []string
	Value       float64
}

// SetGauge sets the gauge value for a label set.
func (r *Registry) SetGauge(name string, labelValues []string, value float64) error {
	return r.Apply(Update{Name: name, Kind: KindGauge, LabelValues: labelValues, Value: value})
}

// IncrementCounter adds delta to the counter for a label set.
func (r *Registry) IncrementCounter(name string, labelValues []string, delta float64) error {
	return r.Apply(Update{Name: name, Kind: KindCounter, LabelValues: labelValues, Value: delta})
}

// ObserveDuration records seconds as the latest duration of a label set.
func (r *Registry) ObserveDuration(name string, labelValues []string, seconds float64) error {
	return r.Apply(Update{Name: name, Kind: KindDuration, LabelValues: labelValues, Value: seconds})
}

// Apply performs every update under one lock acquisition, so a snapshot sees
// all of them or none. Nothing is written unless every update is valid.
func (r *Registry) Apply(updates ...Update) error {
	for _, u := range updates {
		switch {
		case u.Kind == KindCounter && u.Value < 0:
			return ErrNegativeDelta.WithContext("metric", u.Name)
		case u.Kind == KindDuration && u.Value < 0:
			return ErrNegativeDuration.WithContext("metric", u.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fams := make([]*family, len(updates))
	for i, u := range updates {
		f, err := r.familyLocked(u.Name, u.Kind, u.LabelValues)
		if err != nil {
			return err
		}
		fams[i] = f
	}
	for i, u := range updates {
		s := fams[i].sample(u.LabelValues)
		if u.Kind == KindCounter {
			s.value += u.Value
		} else {
			s.value = u.Value
		}
	}
	return nil
}

// familyLocked resolves a family and checks kind and label arity.
// r.mu must be held.
func (r *Registry) familyLocked(name string, kind Kind, labelValues []string) (*family, error) {
	f, ok := r.families[name]
	if !ok {
		return nil, ErrUnknownMetric.WithContext("metric", name)
	}
	if f.desc.Kind != kind {
		return nil, ErrKindMismatch.
			WithContext("metric", name).
			WithContext("declared", f.desc.Kind.String()).
			WithContext("requested", kind.String())
	}
	if len(labelValues) != len(f.desc.LabelNames) {
		return nil, ErrLabelMismatch.
			WithContext("metric", name).
			WithContext("expected", len(f.desc.LabelNames)).
			WithContext("got", len(labelValues))
	}
	return f, nil
}

// sample returns the sample of a label set, creating it on first use.
func (f *family) sample(labelValues []string) *sample {
	key := strings.Join(labelValues, labelSep)
	s, ok := f.samples[key]
	if !ok {
		s = &sample{labelValues: slices.Clone(labelValues)}
		f.samples[key] = s
		f.order = append(f.order, key)
	}
	return s
}

// Snapshot returns a deep copy of every family. Families appear in declaration
// order and samples in the order their label sets were first written.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		TakenAt:  r.now(),
		Families: make([]FamilySnapshot, 0, len(r.order)),
	}
	for _, name := range r.order {
		f := r.families[name]
		fs := FamilySnapshot{
			Desc:    f.desc,
			Samples: make([]Sample, 0, len(f.order)),
		}
		fs.Desc.LabelNames = slices.Clone(f.desc.LabelNames)
		for _, key := range f.order {
			s := f.samples[key]
			fs.Samples = append(fs.Samples, Sample{
				LabelValues: slices.Clone(s.labelValues),
				Value:       s.value,
			})
		}
		snap.Families = append(snap.Families, fs)
	}
	return snap
}
