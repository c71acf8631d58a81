// Package simconfig models the engine configuration as an ordered tree of
// modules, parameters and parameter sets, and reads and writes it in the
// engine's config_v2 XML format.
package simconfig

// Module group names used by the resolver.
const (
	ModuleGlobal              = "global"
	ModuleNetwork             = "network"
	ModulePlans               = "plans"
	ModuleQSim                = "qsim"
	ModuleControler           = "controler"
	ModuleLinkStats           = "linkStats"
	ModuleChangeMode          = "changeMode"
	ModulePlanCalcScore       = "planCalcScore"
	ModulePlansCalcRoute      = "plansCalcRoute"
	ModuleMatrixBasedPtRouter = "matrixBasedPtRouter"
)

// naturalKeys are the parameters that identify a parameter set among its
// siblings of the same type. Sets that carry none of them never match.
var naturalKeys = []string{"activityType", "mode", "subpopulation", "stopFacility"}

// Param is a single name/value setting.
type Param struct {
	Name  string
	Value string
}

// Group holds the params and nested parameter sets shared by modules and
// parameter sets.
type Group struct {
	Params []Param
	Sets   []*ParameterSet
}

// Module is a top-level named group.
type Module struct {
	Name string
	Group
}

// ParameterSet is a typed nested group, such as one activity's scoring
// parameters.
type ParameterSet struct {
	Type string
	Group
}

// Tree is an ordered collection of modules. The zero value is empty and
// ready to use.
type Tree struct {
	modules []*Module
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Modules returns the modules in document order.
func (t *Tree) Modules() []*Module {
	return t.modules
}

// Module returns the named module, or nil.
func (t *Tree) Module(name string) *Module {
	for _, m := range t.modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// HasModule reports whether the named module exists.
func (t *Tree) HasModule(name string) bool {
	return t.Module(name) != nil
}

// EnsureModule returns the named module, appending an empty one if needed.
func (t *Tree) EnsureModule(name string) *Module {
	if m := t.Module(name); m != nil {
		return m
	}
	m := &Module{Name: name}
	t.modules = append(t.modules, m)
	return m
}

// Get returns a module parameter.
func (t *Tree) Get(module, param string) (string, bool) {
	m := t.Module(module)
	if m == nil {
		return "", false
	}
	return m.Get(param)
}

// Set writes a module parameter, creating the module if needed.
func (t *Tree) Set(module, param, value string) {
	t.EnsureModule(module).Set(param, value)
}

// Get returns the named parameter.
func (g *Group) Get(name string) (string, bool) {
	for _, p := range g.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Set overwrites the named parameter or appends it.
func (g *Group) Set(name, value string) {
	for i := range g.Params {
		if g.Params[i].Name == name {
			g.Params[i].Value = value
			return
		}
	}
	g.Params = append(g.Params, Param{Name: name, Value: value})
}

// Unset removes the named parameter. It reports whether it was present.
func (g *Group) Unset(name string) bool {
	for i := range g.Params {
		if g.Params[i].Name == name {
			g.Params = append(g.Params[:i], g.Params[i+1:]...)
			return true
		}
	}
	return false
}

// SetsOfType returns the direct parameter sets of type typ.
func (g *Group) SetsOfType(typ string) []*ParameterSet {
	var out []*ParameterSet
	for _, s := range g.Sets {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

// FindSet returns the parameter set of type typ whose natural key equals key,
// or nil. "pt" finds the teleported parameters of mode pt, for example.
func (g *Group) FindSet(typ, key string) *ParameterSet {
	for _, s := range g.Sets {
		if s.Type != typ {
			continue
		}
		if _, v, ok := s.naturalKey(); ok && v == key {
			return s
		}
	}
	return nil
}

// AddSet appends a parameter set.
func (g *Group) AddSet(ps *ParameterSet) {
	g.Sets = append(g.Sets, ps)
}

func (ps *ParameterSet) naturalKey() (name, value string, ok bool) {
	for _, k := range naturalKeys {
		if v, found := ps.Get(k); found {
			return k, v, true
		}
	}
	return "", "", false
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	out := &Tree{modules: make([]*Module, 0, len(t.modules))}
	for _, m := range t.modules {
		out.modules = append(out.modules, &Module{Name: m.Name, Group: m.Group.clone()})
	}
	return out
}

func (g Group) clone() Group {
	out := Group{}
	if g.Params != nil {
		out.Params = append([]Param(nil), g.Params...)
	}
	for _, s := range g.Sets {
		out.Sets = append(out.Sets, &ParameterSet{Type: s.Type, Group: s.Group.clone()})
	}
	return out
}

// Equal reports whether t and other hold the same modules, parameters and
// sets in the same order.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.modules) != len(other.modules) {
		return false
	}
	for i, m := range t.modules {
		o := other.modules[i]
		if m.Name != o.Name || !m.Group.equal(&o.Group) {
			return false
		}
	}
	return true
}

func (g *Group) equal(o *Group) bool {
	if len(g.Params) != len(o.Params) || len(g.Sets) != len(o.Sets) {
		return false
	}
	for i := range g.Params {
		if g.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range g.Sets {
		if g.Sets[i].Type != o.Sets[i].Type || !g.Sets[i].Group.equal(&o.Sets[i].Group) {
			return false
		}
	}
	return true
}

// Merge layers overlay onto t. Every parameter the overlay defines replaces
// the one in t. Parameter sets are matched by type and natural key and merged
// recursively; unmatched sets are appended. overlay is not modified.
func (t *Tree) Merge(overlay *Tree) {
	if overlay == nil {
		return
	}
	for _, om := range overlay.modules {
		t.EnsureModule(om.Name).Group.merge(&om.Group)
	}
}

func (g *Group) merge(overlay *Group) {
	for _, p := range overlay.Params {
		g.Set(p.Name, p.Value)
	}
	for _, ov := range overlay.Sets {
		var target *ParameterSet
		if _, key, ok := ov.naturalKey(); ok {
			target = g.FindSet(ov.Type, key)
		}
		if target == nil {
			g.Sets = append(g.Sets, &ParameterSet{Type: ov.Type, Group: ov.Group.clone()})
			continue
		}
		target.Group.merge(&ov.Group)
	}
}
