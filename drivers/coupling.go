package drivers

import (
	"fmt"
	"strings"

	"github.com/meteocima/coupled-drivers/envspec"
)

// CouplingField is a field sent through the coupler.
type CouplingField struct {
	Name   string
	Source string
	Target string
	// Period is the coupling period in seconds.
	Period int
}

// coupler identifiers of the components, in the order they
// appear in the coupler configuration.
var couplerIDs = []struct {
	model string
	id    string
}{
	{"um", "toyatm"},
	{"lfric", "lfric"},
	{"nemo", "toyoce"},
	{"rivers", "rivers"},
}

// CouplerComponents maps the COUPLING_COMPONENTS list (models
// separated by spaces) to coupler identifiers, in canonical order.
func CouplerComponents(components string) ([]string, error) {
	requested := map[string]bool{}
	for _, f := range strings.Fields(components) {
		f = strings.ToLower(f)
		known := false
		for _, c := range couplerIDs {
			if c.model == f {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("model `%s` cannot be coupled: expecting one of um, lfric, nemo, rivers", f)
		}
		requested[f] = true
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("no coupled components in `%s`", components)
	}
	if requested["um"] && requested["lfric"] {
		return nil, fmt.Errorf("um and lfric cannot be coupled in the same run")
	}

	var res []string
	for _, c := range couplerIDs {
		if requested[c.model] {
			res = append(res, c.id)
		}
	}
	return res, nil
}

// CouplerComponentsString is CouplerComponents joined by commas.
func CouplerComponentsString(components string) (string, error) {
	ids, err := CouplerComponents(components)
	if err != nil {
		return "", err
	}
	return strings.Join(ids, ","), nil
}

// couplerID returns the identifier of model, or model itself.
func couplerID(model string) string {
	for _, c := range couplerIDs {
		if c.model == model {
			return c.id
		}
	}
	return model
}

// atmosphereOf returns the coupled atmosphere in components.
func atmosphereOf(components string) string {
	for _, f := range strings.Fields(components) {
		switch strings.ToLower(f) {
		case "um", "lfric":
			return strings.ToLower(f)
		}
	}
	return ""
}

// coupledWith reports whether model appears in components.
func coupledWith(components, model string) bool {
	for _, f := range strings.Fields(components) {
		if strings.EqualFold(f, model) {
			return true
		}
	}
	return false
}

// isFalse fires on any spelling of a false flag, but not on
// the empty string.
var isFalse = envspec.Custom("false flag", func(v string) (bool, error) {
	if strings.TrimSpace(v) == "" {
		return false, nil
	}
	b, err := parseFlag(v)
	return err == nil && !b, err
})

// couplingPeriod returns CPL_PERIOD, which must be a positive
// number of seconds.
func couplingPeriod(common envspec.Resolved) (int, error) {
	period, err := atoi(common, "CPL_PERIOD")
	if err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, fmt.Errorf("CPL_PERIOD must be a positive number of seconds, got `%s`", common.Get("CPL_PERIOD"))
	}
	return period, nil
}

// namcoupleRuntime reports whether coupling configuration is
// generated at run time.
func namcoupleRuntime(common map[string]string) bool {
	runtime, _ := isFalse.Test(common["NAMCOUPLE_STATIC"])
	return runtime
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(v), ".")) {
	case "true", "t", "1", "yes":
		return true, nil
	case "false", "f", "0", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: `%s`", v)
}
