package conf

import "fmt"

// RunMode selects what the drivers do in one invocation.
type RunMode int

const (
	// RunDriver - prepare the environment and launch command
	RunDriver RunMode = iota
	// Finalize - tidy up after the model run
	Finalize
)

func (m RunMode) String() string {
	switch m {
	case RunDriver:
		return "run_driver"
	case Finalize:
		return "finalize"
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// FromString parses the mode name used on the command line.
func (m *RunMode) FromString(s string) error {
	switch s {
	case "run_driver", "run":
		*m = RunDriver
	case "finalize":
		*m = Finalize
	default:
		return fmt.Errorf("unknown mode `%s`: expecting one of run_driver, finalize", s)
	}
	return nil
}
