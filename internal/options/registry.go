package options

import "strings"

// Recognized option keys.
const (
	KeyType             = "type"
	KeyModes            = "modes"
	KeyCRS              = "crs"
	KeyNetwork          = "network"
	KeyNetworkCRS       = "network_crs"
	KeyNetworkClean     = "network_clean"
	KeyPlans            = "plans"
	KeyPlansCRS         = "plans_crs"
	KeyPlansSample      = "plans_sample"
	KeyActivityConfig   = "activity_config"
	KeyStartTime        = "starttime"
	KeyEndTime          = "endtime"
	KeyFlowCapFactor    = "flowcap_factor"
	KeyStorageCapFactor = "storagecap_factor"
	KeyLinkStats        = "link_stats"
	KeyIterationsMax    = "iterations_max"
	KeyConfig           = "config"
	KeyOverrideConfig   = "override_config"
	KeyOutput           = "output"
	KeyPtStopsCSV       = "pt-stops-csv"
)

// Kind describes how a value is interpreted.
type Kind int

const (
	KindString Kind = iota
	KindSelector
	KindPath
	KindCRS
	KindTime
	KindFloat
	KindInt
	KindIntPair
	KindYesNo
)

// String returns the kind name shown in help output.
func (k Kind) String() string {
	switch k {
	case KindSelector:
		return "selector"
	case KindPath:
		return "path"
	case KindCRS:
		return "crs"
	case KindTime:
		return "hh:mm:ss"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindIntPair:
		return "int,int"
	case KindYesNo:
		return "yes|no"
	default:
		return "string"
	}
}

// Spec describes one recognized option.
type Spec struct {
	Key  string
	Kind Kind
	Help string

	// OnlyFor restricts the option to one mode. ModeNone means unconditional.
	OnlyFor Mode
}

var registry = []Spec{
	{Key: KeyType, Kind: KindSelector, Help: "run type: default_config, config or simulation"},
	{Key: KeyModes, Kind: KindSelector, Help: "simulation modes: car_sim, car_sim_pt_teleport or car_pt_sim"},
	{Key: KeyCRS, Kind: KindCRS, Help: "coordinate reference system of the simulation"},
	{Key: KeyNetwork, Kind: KindPath, Help: "network input file"},
	{Key: KeyNetworkCRS, Kind: KindCRS, Help: "coordinate reference system of the network input"},
	{Key: KeyNetworkClean, Kind: KindYesNo, Help: "clean the loaded network before simulating"},
	{Key: KeyPlans, Kind: KindPath, Help: "plans (population) input file"},
	{Key: KeyPlansCRS, Kind: KindCRS, Help: "coordinate reference system of the plans input"},
	{Key: KeyPlansSample, Kind: KindFloat, Help: "fraction of the population to simulate, in (0,1]"},
	{Key: KeyActivityConfig, Kind: KindPath, Help: "configuration file holding the activity types, layered first"},
	{Key: KeyStartTime, Kind: KindTime, Help: "simulation start time"},
	{Key: KeyEndTime, Kind: KindTime, Help: "simulation end time"},
	{Key: KeyFlowCapFactor, Kind: KindFloat, Help: "factor applied to all link flow capacities"},
	{Key: KeyStorageCapFactor, Kind: KindFloat, Help: "factor applied to all link storage capacities"},
	{Key: KeyLinkStats, Kind: KindIntPair, Help: "link statistics averaging interval and persistence interval"},
	{Key: KeyIterationsMax, Kind: KindInt, Help: "maximum number of iterations"},
	{Key: KeyConfig, Kind: KindPath, Help: "base configuration file for a file-based simulation run"},
	{Key: KeyOverrideConfig, Kind: KindPath, Help: "comma separated configuration files applied over --config in order"},
	{Key: KeyOutput, Kind: KindPath, Help: "output directory"},
	{Key: KeyPtStopsCSV, Kind: KindPath, Help: "pt stops CSV enabling the matrix based pt router", OnlyFor: ModeCarTeleportedTransit},
}

// Registry returns the recognized options in declaration order.
func Registry() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the registry entry for key.
func Lookup(key string) (Spec, bool) {
	key = normalizeKey(key)
	for _, s := range registry {
		if s.Key == key {
			return s, true
		}
	}
	return Spec{}, false
}

// Unknown returns the keys of m that are not registered, sorted.
func Unknown(m Map) []string {
	var out []string
	for _, k := range m.Keys() {
		if _, ok := Lookup(k); !ok {
			out = append(out, k)
		}
	}
	return out
}

// Inapplicable returns registered keys of m that only apply to another mode.
func Inapplicable(m Map, mode Mode) []string {
	var out []string
	for _, k := range m.Keys() {
		s, ok := Lookup(k)
		if ok && s.OnlyFor != ModeNone && s.OnlyFor != mode {
			out = append(out, k)
		}
	}
	return out
}

// FlagName returns the command line spelling of key.
func FlagName(key string) string {
	return "--" + strings.ToLower(key)
}
