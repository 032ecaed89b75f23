package drivers

import (
	"github.com/meteocima/coupled-drivers/envspec"
)

// analysisVars makes the CPMIP inputs required when the list of
// analyses contains cpmip.
func analysisVars() []envspec.VariableSpec {
	return []envspec.VariableSpec{
		envspec.Optional("DRIVERS_ANALYSIS", "", "space separated analyses to run after the model",
			envspec.When(envspec.Contains("cpmip"), "DATAM", "CPMIP_WALLCLOCK", "CPMIP_OUTPUT"),
		),
		envspec.Conditional("DATAM", "directory of the model output data"),
		envspec.Conditional("CPMIP_WALLCLOCK", "wallclock seconds taken by the model run"),
		envspec.Optional("CPMIP_OUTPUT", "cpmip.output", "file receiving the CPMIP report").OnlyWhenTriggered(),
	}
}

// CommonTable declares the variables shared by every component
// in the initial phase.
func CommonTable() envspec.Table {
	specs := []envspec.VariableSpec{
		envspec.Optional("CALENDAR", Calendar360, "model calendar: 360day, 365day or gregorian"),
		envspec.Required("MODELBASIS", "basis time of the run, Y,M,D,h,m,s"),
		envspec.Required("TASKSTART", "start of this cycle, Y,M,D,h,m,s"),
		envspec.Required("TASKLENGTH", "length of this cycle, Y,M,D,h,m,s"),
		envspec.Required("RUNID", "suite identifier"),
		envspec.Optional("ROSE_LAUNCHER", "", "job launcher; empty uses the one of the configuration"),
		envspec.Optional("CONTINUE", "false", "true when continuing from the restarts of a previous cycle"),
		envspec.Optional("NAMCOUPLE_STATIC", "true", "false to generate the coupling configuration at run time",
			envspec.When(isFalse, "COUPLING_COMPONENTS", "CPL_PERIOD"),
		),
		envspec.Conditional("COUPLING_COMPONENTS", "space separated models exchanging fields through the coupler"),
		envspec.Optional("CPL_PERIOD", "10800", "coupling period in seconds").OnlyWhenTriggered(),
	}
	specs = append(specs, analysisVars()...)
	return envspec.NewTable("common initial", specs...)
}

// CommonFinalTable declares the variables shared by every component
// in the final phase.
func CommonFinalTable() envspec.Table {
	specs := []envspec.VariableSpec{
		envspec.Optional("CALENDAR", Calendar360, "model calendar: 360day, 365day or gregorian"),
		envspec.Required("TASKSTART", "start of this cycle, Y,M,D,h,m,s"),
		envspec.Required("TASKLENGTH", "length of this cycle, Y,M,D,h,m,s"),
		envspec.Required("RUNID", "suite identifier"),
	}
	specs = append(specs, analysisVars()...)
	return envspec.NewTable("common final", specs...)
}
