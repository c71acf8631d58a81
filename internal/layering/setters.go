package layering

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nvandessel/simwrap/internal/constants"
	"github.com/nvandessel/simwrap/internal/options"
	"github.com/nvandessel/simwrap/internal/pathutil"
	"github.com/nvandessel/simwrap/internal/simconfig"
)

// Configuration parameters written by the setters.
const (
	paramCoordinateSystem   = "coordinateSystem"
	paramInputNetworkFile   = "inputNetworkFile"
	paramInputPlansFile     = "inputPlansFile"
	paramInputCRS           = "inputCRS"
	paramStartTime          = "startTime"
	paramEndTime            = "endTime"
	paramFlowCapFactor      = "flowCapacityFactor"
	paramStorageCapFactor   = "storageCapacityFactor"
	paramAverageLinkStats   = "averageLinkStatsOverIterations"
	paramWriteLinkStats     = "writeLinkStatsInterval"
	paramLastIteration      = "lastIteration"
	paramOutputDirectory    = "outputDirectory"
	paramChangeModeModes    = "modes"
	paramPtStopsInputFile   = "ptStopsInputFile"
	paramUsingPtStops       = "usingPtStops"
	paramUsingTravelTimes   = "usingTravelTimesAndDistances"
	paramTeleportedSpeed    = "teleportedModeSpeed"
	paramTeleportedFreespd  = "teleportedModeFreespeedFactor"
	setTeleportedModeParams = "teleportedModeParameters"

	simulatedCarMode = "car"
	ptMode           = "pt"
)

// timeOfDay matches hh:mm:ss. Hours may exceed 23 for runs past midnight.
var timeOfDay = regexp.MustCompile(`^\d{2,}:[0-5]\d:[0-5]\d$`)

func setting(module, param string) string {
	return module + "." + param
}

func applyActivityOverlay(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	o := Outcome{Key: options.KeyActivityConfig}
	path, ok := m.Value(options.KeyActivityConfig)
	if !ok {
		o.Status = Skipped
		o.Reason = fmt.Sprintf("missing activity configuration file (%s)", options.FlagName(options.KeyActivityConfig))
		return o
	}
	o.Value = path

	if err := simconfig.LoadInto(t, path); err != nil {
		o.Status = Skipped
		switch {
		case errors.Is(err, pathutil.ErrNotFound):
			o.Reason = fmt.Sprintf("activity configuration file %s not available", path)
		case errors.Is(err, simconfig.ErrMalformed):
			o.Reason = fmt.Sprintf("activity configuration file %s is malformed, ignored: %v", path, err)
		default:
			o.Reason = fmt.Sprintf("activity configuration file %s cannot be read, ignored: %v", path, err)
		}
		return o
	}
	o.Status = Applied
	return o
}

func setModes(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	o := Outcome{Key: options.KeyModes, Setting: setting(simconfig.ModuleChangeMode, paramChangeModeModes)}
	v, ok := m.Value(options.KeyModes)
	if !ok {
		t.Set(simconfig.ModuleChangeMode, paramChangeModeModes, simulatedCarMode)
		o.Value, o.Status = simulatedCarMode, Defaulted
		return o
	}

	switch options.ParseMode(v) {
	case options.ModeCarOnly:
		o.Reason = "simulation mode: car"
	case options.ModeCarTeleportedTransit:
		o.Reason = "simulation mode: car, teleportation mode: pt"
	case options.ModeCarSimulatedTransit:
		o.Status, o.Value = Ignored, v
		o.Reason = fmt.Sprintf("value %s for %s not yet supported, ignored", v, options.FlagName(options.KeyModes))
		return o
	default:
		o.Status, o.Value = Ignored, v
		o.Reason = fmt.Sprintf("unknown value %s for %s, ignored", v, options.FlagName(options.KeyModes))
		return o
	}
	t.Set(simconfig.ModuleChangeMode, paramChangeModeModes, simulatedCarMode)
	o.Value, o.Status = simulatedCarMode, Applied
	return o
}

// setString writes an option verbatim, or def when it is absent.
func setString(t *simconfig.Tree, m options.Map, key, module, param, def string) Outcome {
	o := Outcome{Key: key, Setting: setting(module, param)}
	if v, ok := m.Value(key); ok {
		o.Value, o.Status = v, Applied
	} else {
		o.Value, o.Status = def, Defaulted
	}
	t.Set(module, param, o.Value)
	return o
}

// setPath writes a cleaned path option. def is used when the key is absent.
func setPath(t *simconfig.Tree, m options.Map, key, module, param, def string) Outcome {
	o := Outcome{Key: key, Setting: setting(module, param)}
	raw, ok := m.Value(key)
	if !ok {
		o.Value, o.Status = def, Defaulted
		t.Set(module, param, def)
		return o
	}
	if strings.ContainsRune(raw, '\x00') {
		cur, _ := t.Get(module, param)
		o.Value, o.Status = cur, Ignored
		o.Reason = fmt.Sprintf("invalid file location for %s, ignored", options.FlagName(key))
		return o
	}
	o.Value, o.Status = filepath.Clean(raw), Applied
	t.Set(module, param, o.Value)
	return o
}

func setCRS(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setString(t, m, options.KeyCRS, simconfig.ModuleGlobal, paramCoordinateSystem, e.defaults().CRS)
}

func setNetwork(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setPath(t, m, options.KeyNetwork, simconfig.ModuleNetwork, paramInputNetworkFile, e.defaults().Network)
}

func setNetworkCRS(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setString(t, m, options.KeyNetworkCRS, simconfig.ModuleNetwork, paramInputCRS, e.defaults().CRS)
}

func setPlans(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setPath(t, m, options.KeyPlans, simconfig.ModulePlans, paramInputPlansFile, e.defaults().Plans)
}

func setPlansCRS(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setString(t, m, options.KeyPlansCRS, simconfig.ModulePlans, paramInputCRS, e.defaults().CRS)
}

func setTime(t *simconfig.Tree, m options.Map, key, param, def string) Outcome {
	o := Outcome{Key: key, Setting: setting(simconfig.ModuleQSim, param)}
	v, ok := m.Value(key)
	switch {
	case !ok:
		o.Value, o.Status = def, Defaulted
	case !timeOfDay.MatchString(v):
		o.Value, o.Status = def, Ignored
		o.Reason = fmt.Sprintf("%s value %q is not a hh:mm:ss time, using %s", options.FlagName(key), v, def)
	default:
		o.Value, o.Status = v, Applied
	}
	t.Set(simconfig.ModuleQSim, param, o.Value)
	return o
}

func setStartTime(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setTime(t, m, options.KeyStartTime, paramStartTime, e.defaults().StartTime)
}

func setEndTime(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setTime(t, m, options.KeyEndTime, paramEndTime, e.defaults().EndTime)
}

// setFactor writes a positive scale factor. When the key is absent or bad the
// template's value stays in place.
func setFactor(t *simconfig.Tree, m options.Map, key, param string) Outcome {
	o := Outcome{Key: key, Setting: setting(simconfig.ModuleQSim, param)}
	cur, _ := t.Get(simconfig.ModuleQSim, param)
	v, ok := m.Value(key)
	if !ok {
		o.Value, o.Status = cur, Defaulted
		return o
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		o.Value, o.Status = cur, Ignored
		o.Reason = fmt.Sprintf("%s value %q is not a valid positive floating point value, ignored", options.FlagName(key), v)
		return o
	}
	o.Value, o.Status = strconv.FormatFloat(f, 'g', -1, 64), Applied
	t.Set(simconfig.ModuleQSim, param, o.Value)
	return o
}

func setFlowCapFactor(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setFactor(t, m, options.KeyFlowCapFactor, paramFlowCapFactor)
}

func setStorageCapFactor(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	return setFactor(t, m, options.KeyStorageCapFactor, paramStorageCapFactor)
}

// setLinkStats applies "<average>,<write>". Averaging must not span more
// iterations than the persistence interval, unless persistence is 0, which
// disables link statistics.
func setLinkStats(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	o := Outcome{Key: options.KeyLinkStats, Setting: simconfig.ModuleLinkStats}
	curAvg, _ := t.Get(simconfig.ModuleLinkStats, paramAverageLinkStats)
	curWrite, _ := t.Get(simconfig.ModuleLinkStats, paramWriteLinkStats)
	current := curAvg + "," + curWrite

	v, ok := m.Value(options.KeyLinkStats)
	if !ok {
		o.Value, o.Status = current, Defaulted
		return o
	}

	ignore := func(reason string) Outcome {
		o.Value, o.Status = current, Ignored
		o.Reason = fmt.Sprintf("%s value %q %s, adopting defaults", options.FlagName(options.KeyLinkStats), v, reason)
		return o
	}

	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return ignore("is not two comma separated integers")
	}
	avg, errAvg := strconv.Atoi(strings.TrimSpace(parts[0]))
	write, errWrite := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errAvg != nil || errWrite != nil || avg < 0 || write < 0 {
		return ignore("is not two non-negative integers")
	}
	if write > 0 && avg > write {
		return ignore("averages over more iterations than it persists")
	}

	t.Set(simconfig.ModuleLinkStats, paramAverageLinkStats, strconv.Itoa(avg))
	t.Set(simconfig.ModuleLinkStats, paramWriteLinkStats, strconv.Itoa(write))
	o.Value, o.Status = fmt.Sprintf("%d,%d", avg, write), Applied
	if write == 0 {
		o.Reason = "link statistics disabled"
	}
	return o
}

func setIterationsMax(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	o := Outcome{Key: options.KeyIterationsMax, Setting: setting(simconfig.ModuleControler, paramLastIteration)}
	def := strconv.Itoa(e.defaults().IterationsMax)
	v, ok := m.Value(options.KeyIterationsMax)
	switch {
	case !ok:
		o.Value, o.Status = def, Defaulted
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			o.Value, o.Status = def, Ignored
			o.Reason = fmt.Sprintf("%s value %q is not a positive integer, using %s", options.FlagName(options.KeyIterationsMax), v, def)
		} else {
			o.Value, o.Status = strconv.Itoa(n), Applied
		}
	}
	t.Set(simconfig.ModuleControler, paramLastIteration, o.Value)
	return o
}

func setOutputDirectory(e *Engine, t *simconfig.Tree, m options.Map) Outcome {
	o := Outcome{Key: options.KeyOutput, Setting: setting(simconfig.ModuleControler, paramOutputDirectory)}
	o.Value = e.defaults().OutputDir(m)
	o.Status = Applied
	if _, ok := m.Value(options.KeyOutput); !ok {
		o.Status = Defaulted
	}
	t.Set(simconfig.ModuleControler, paramOutputDirectory, o.Value)
	return o
}

// configurePtMatrixRouter activates the matrix based pt router when a pt
// stops table is supplied. Without a stop-to-stop travel time matrix the
// engine derives one and needs an explicit teleported pt speed for it, so a
// missing speed is derived from the car speed estimate and the freespeed
// factor.
func configurePtMatrixRouter(e *Engine, t *simconfig.Tree, m options.Map) []Outcome {
	stops, ok := m.Value(options.KeyPtStopsCSV)
	if !ok {
		return []Outcome{{
			Key:    options.KeyPtStopsCSV,
			Status: Inactive,
			Reason: "no pt stops CSV provided, matrix based router not activated",
		}}
	}

	router := t.EnsureModule(simconfig.ModuleMatrixBasedPtRouter)
	router.Set(paramPtStopsInputFile, stops)
	router.Set(paramUsingPtStops, "true")
	router.Set(paramUsingTravelTimes, "false")
	outcomes := []Outcome{{
		Key:     options.KeyPtStopsCSV,
		Setting: setting(simconfig.ModuleMatrixBasedPtRouter, paramPtStopsInputFile),
		Value:   stops,
		Status:  Applied,
	}}

	speedSetting := setting(simconfig.ModulePlansCalcRoute, "pt."+paramTeleportedSpeed)
	route := t.Module(simconfig.ModulePlansCalcRoute)
	var pt *simconfig.ParameterSet
	if route != nil {
		pt = route.FindSet(setTeleportedModeParams, ptMode)
	}
	if pt == nil {
		return append(outcomes, Outcome{
			Key:     options.KeyPtStopsCSV,
			Setting: speedSetting,
			Status:  Skipped,
			Reason:  "configuration has no teleported parameters for pt, the engine will fail to build the pt matrix",
		})
	}
	if v, ok := pt.Get(paramTeleportedSpeed); ok {
		return append(outcomes, Outcome{Key: options.KeyPtStopsCSV, Setting: speedSetting, Value: v, Status: Defaulted})
	}

	raw, _ := pt.Get(paramTeleportedFreespd)
	factor, err := strconv.ParseFloat(raw, 64)
	if err != nil || factor <= 0 || math.IsInf(factor, 0) {
		return append(outcomes, Outcome{
			Key:     options.KeyPtStopsCSV,
			Setting: speedSetting,
			Status:  Skipped,
			Reason: fmt.Sprintf("teleported pt speed not set and freespeed factor %q unusable, "+
				"the engine will fail to build the pt matrix", raw),
		})
	}

	carSpeed := e.defaults().CarSpeedEstimateKmh * constants.KmhToMps
	speed := carSpeed / factor
	value := strconv.FormatFloat(speed, 'f', -1, 64)
	pt.Unset(paramTeleportedFreespd)
	pt.Set(paramTeleportedSpeed, value)

	return append(outcomes, Outcome{
		Key:     options.KeyPtStopsCSV,
		Setting: speedSetting,
		Value:   value,
		Status:  Derived,
		Reason: fmt.Sprintf("teleported pt speed not set in configuration, set to car reference speed estimate / freespeed factor = %.2f / %.2f = %.2f m/s",
			carSpeed, factor, speed),
	})
}
