package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// Definition describes a machine with string identities.
type Definition struct {
	Name        string       `yaml:"name"`
	Initial     string       `yaml:"initial"`
	States      []State      `yaml:"states"`
	Transitions []Transition `yaml:"transitions"`
	Submachine  *Definition  `yaml:"submachine,omitempty"`
}

// State declares a state. Transit is the default transit state reported by
// its handlers while an event is in flight.
type State struct {
	Name    string `yaml:"name"`
	Transit string `yaml:"transit,omitempty"`
}

// Transition declares the handler of one event kind in one state.
type Transition struct {
	From    string        `yaml:"from"`
	Event   string        `yaml:"event"`
	Success string        `yaml:"success"`
	Failure string        `yaml:"failure,omitempty"` // defaults to From
	Transit string        `yaml:"transit,omitempty"` // overrides State.Transit
	Fail    bool          `yaml:"fail,omitempty"`
	Delay   time.Duration `yaml:"delay,omitempty"`
}

// Parse decodes a YAML definition and validates it. Unknown fields are
// rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDefinition)
		}
		return nil, errors.Join(ErrDecode, err)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads and parses the definition stored at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	return Parse(data)
}

// Marshal encodes def as YAML.
func Marshal(def *Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate reports every problem found in def, joined with
// ErrInvalidDefinition.
func (d *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Initial == "" {
		add("initial state is required")
	}
	if len(d.States) == 0 {
		add("at least one state is required")
	}

	declared := make(map[string]bool, len(d.States))
	for _, st := range d.States {
		switch {
		case st.Name == "":
			add("state name is required")
		case declared[st.Name]:
			add("duplicate state %q", st.Name)
		}
		declared[st.Name] = true
	}
	for _, st := range d.States {
		if st.Transit != "" && !declared[st.Transit] {
			add("state %q: unknown transit state %q", st.Name, st.Transit)
		}
	}
	if d.Initial != "" && !declared[d.Initial] {
		add("unknown initial state %q", d.Initial)
	}

	type key struct{ from, event string }
	seen := make(map[key]bool, len(d.Transitions))
	for i, tr := range d.Transitions {
		if tr.Event == "" {
			add("transition %d: event is required", i)
		}
		refs := []struct {
			field, name string
			optional    bool
		}{
			{"from", tr.From, false},
			{"success", tr.Success, false},
			{"failure", tr.Failure, true},
			{"transit", tr.Transit, true},
		}
		for _, ref := range refs {
			if ref.name == "" && ref.optional {
				continue
			}
			if !declared[ref.name] {
				add("transition %d (%s on %s): unknown %s state %q", i, tr.From, tr.Event, ref.field, ref.name)
			}
		}
		if tr.Delay < 0 {
			add("transition %d (%s on %s): negative delay", i, tr.From, tr.Event)
		}
		if tr.Event == statemachine.SubEventName && d.Submachine == nil {
			add("transition %d (%s on %s): no submachine to forward to", i, tr.From, tr.Event)
		}
		k := key{tr.From, tr.Event}
		if seen[k] {
			add("duplicate transition for event %q in state %q", tr.Event, tr.From)
		}
		seen[k] = true
	}

	if d.Submachine != nil {
		if d.Submachine.Name != "" && d.Submachine.Name == d.MachineName() {
			add("submachine name %q equals the machine name", d.Submachine.Name)
		}
		if err := d.Submachine.Validate(); err != nil {
			add("submachine: %w", err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidDefinition}, errs...)...)
}

// MachineName returns the name the built machine reports in records.
func (d *Definition) MachineName() string {
	if d.Name == "" {
		return statemachine.DefaultName
	}
	return d.Name
}

// SubmachineName returns the name of the built submachine: its own name, or
// the machine name with a ".sub" suffix. It is "" without a submachine.
func (d *Definition) SubmachineName() string {
	switch {
	case d.Submachine == nil:
		return ""
	case d.Submachine.Name != "":
		return d.Submachine.Name
	default:
		return d.MachineName() + ".sub"
	}
}

// StateNames returns the declared states in declaration order.
func (d *Definition) StateNames() []string {
	out := make([]string, 0, len(d.States))
	for _, st := range d.States {
		out = append(out, st.Name)
	}
	return out
}

func (d *Definition) transitOf(state string) string {
	for _, st := range d.States {
		if st.Name == state {
			return st.Transit
		}
	}
	return ""
}
