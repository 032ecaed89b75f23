package envspec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverrideWins(t *testing.T) {
	common := NewTable("common",
		Optional("CALENDAR", "360day", ""),
		Required("RUNID", ""),
	)
	nemo := NewTable("nemo",
		Optional("CALENDAR", "gregorian", ""),
		Required("NEMO_NPROC", ""),
	)
	merged := Merge(common, nemo)

	assert.Equal(t, "common+nemo", merged.Name())
	assert.Equal(t, []string{"CALENDAR", "RUNID", "NEMO_NPROC"}, merged.Names())
	spec, ok := merged.Lookup("CALENDAR")
	require.True(t, ok)
	assert.Equal(t, "gregorian", *spec.Default)

	// inputs are untouched
	spec, _ = common.Lookup("CALENDAR")
	assert.Equal(t, "360day", *spec.Default)
	assert.Equal(t, 2, nemo.Len())
}

func TestMergeEmptyBase(t *testing.T) {
	merged := Merge(Table{}, NewTable("x", Required("A", "")))
	assert.Equal(t, "x", merged.Name())
	assert.Equal(t, []string{"A"}, merged.Names())
}

func TestValidate(t *testing.T) {
	table := launcherTable()
	unknown := table.Validate(NewTable("global", Conditional("OMPTHR", "")))
	require.Len(t, unknown, 1)
	assert.Equal(t, "HYPERTHREADS", unknown[0].Name)
	assert.Equal(t, "ROSE_LAUNCHER_PREOPTS", unknown[0].Owner)
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred  Predicate
		value string
		want  bool
		err   bool
	}{
		{Equals("unset"), "unset", true, false},
		{Equals("unset"), "-n 4", false, false},
		{NotEquals("0"), "4", true, false},
		{NonEmpty(), "", false, false},
		{NonEmpty(), "x", true, false},
		{OneOf("360day", "365day"), "365day", true, false},
		{OneOf("360day", "365day"), "gregorian", false, false},
		{Contains("cpmip"), "timers,cpmip", true, false},
		{Contains("cpmip"), "my_val", false, false},
		{IntAbove(0), "3", true, false},
		{IntAbove(0), "0", false, false},
		{IntAbove(0), "", false, true},
		{Custom("boom", func(string) (bool, error) { panic("boom") }), "x", false, true},
		{Custom("fails", func(string) (bool, error) { return true, errors.New("no") }), "x", true, true},
	}
	for _, c := range cases {
		got, err := c.pred.Test(c.value)
		if c.err {
			assert.Error(t, err, c.pred.String())
			continue
		}
		assert.NoError(t, err, c.pred.String())
		assert.Equal(t, c.want, got, "%s on %q", c.pred, c.value)
	}
}

func TestEvaluate(t *testing.T) {
	spec := Optional("X", "", "",
		When(IntAbove(2), "B", "C"),
		When(NonEmpty(), "A", "B"),
		When(Custom("broken", func(string) (bool, error) { return false, errors.New("bad") }), "D"),
	)
	assert.Equal(t, []string{"B", "C", "A"}, Evaluate(spec, "5"))
	assert.Equal(t, []string{"A", "B"}, Evaluate(spec, "abc"))
	assert.Empty(t, Evaluate(spec, ""))
}

func TestSnapshotFromEnviron(t *testing.T) {
	env := SnapshotFromEnviron([]string{"A=1", "B=x=y", "C=", "broken"})
	assert.Equal(t, Snapshot{"A": "1", "B": "x=y", "C": ""}, env)

	layered := env.Over(map[string]string{"A": "0", "D": "4"})
	assert.Equal(t, "1", layered["A"])
	assert.Equal(t, "4", layered["D"])
}

func TestLoadTables(t *testing.T) {
	doc := `
tables:
  site:
    SITE_QUEUE:
      default: normal
      description: batch queue
      triggers:
        - when: {kind: one-of, values: [debug, test]}
          require: [SITE_DEBUG_DIR]
    SITE_DEBUG_DIR:
      conditional: true
  other:
    Z: {}
`
	tables, err := LoadTables(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "site", tables[0].Name())
	assert.Equal(t, []string{"SITE_QUEUE", "SITE_DEBUG_DIR"}, tables[0].Names())

	_, missing, err := Resolve(tables[0], Snapshot{"SITE_QUEUE": "debug"})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "SITE_DEBUG_DIR", missing[0].Name)

	spec, _ := tables[1].Lookup("Z")
	assert.False(t, spec.HasDefault())
}

func TestLoadTablesRejectsCustom(t *testing.T) {
	doc := "tables:\n  t:\n    A:\n      triggers:\n        - when: {kind: custom}\n          require: [B]\n"
	_, err := LoadTables(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestLoadTablesIntAbove(t *testing.T) {
	doc := "tables:\n  t:\n    A:\n      triggers:\n        - when: {kind: int-above, value: \" 4\"}\n          require: [B]\n"
	tables, err := LoadTables(strings.NewReader(doc))
	require.NoError(t, err)
	spec, _ := tables[0].Lookup("A")
	assert.Equal(t, IntAbove(4), spec.Triggers[0].Predicate)

	doc = "tables:\n  t:\n    A:\n      triggers:\n        - when: {kind: int-above, value: many}\n          require: [B]\n"
	_, err = LoadTables(strings.NewReader(doc))
	assert.EqualError(t, err, "LoadTables: table `t`, variable A: int-above predicate: `many` is not an integer")
}

func TestLoadTablesEmpty(t *testing.T) {
	tables, err := LoadTables(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, tables)
}
