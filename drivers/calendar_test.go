package drivers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateSpec(t *testing.T) {
	d, err := ParseDateSpec("1978,9,1,6,30")
	require.NoError(t, err)
	assert.Equal(t, DateSpec{1978, 9, 1, 6, 30, 0}, d)
	assert.Equal(t, "19780901", d.Compact())

	_, err = ParseDateSpec("1978,9,1")
	assert.Error(t, err)
	_, err = ParseDateSpec("1978,9,x,0,0,0")
	assert.Error(t, err)
	_, err = ParseDateSpec("1978,-9,1,0,0,0")
	assert.Error(t, err)
}

func TestRunLength(t *testing.T) {
	day := int64(secondsPerDay)
	tests := []struct {
		name     string
		calendar string
		start    DateSpec
		length   DateSpec
		want     int64
	}{
		{"360 day month", Calendar360, DateSpec{Year: 1978, Month: 2, Day: 1}, DateSpec{Month: 1}, 30 * day},
		{"360 day year", Calendar360, DateSpec{Year: 1978, Month: 9, Day: 1}, DateSpec{Year: 1}, 360 * day},
		{"365 day february", Calendar365, DateSpec{Year: 2000, Month: 2, Day: 1}, DateSpec{Month: 1}, 28 * day},
		{"365 day across the year", Calendar365, DateSpec{Year: 2000, Month: 12, Day: 1}, DateSpec{Month: 2}, 62 * day},
		{"gregorian leap february", CalendarGreg, DateSpec{Year: 2020, Month: 2, Day: 1}, DateSpec{Month: 1}, 29 * day},
		{"gregorian hours", CalendarGreg, DateSpec{Year: 2020, Month: 1, Day: 1}, DateSpec{Hour: 6, Minute: 30}, 6*3600 + 30*60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunLength(tt.calendar, tt.start, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := RunLength("julian", DateSpec{}, DateSpec{})
	assert.Error(t, err)
}

func TestSimulatedYears(t *testing.T) {
	years, err := SimulatedYears(map[string]string{
		"CALENDAR":   Calendar360,
		"TASKSTART":  "1978,9,1,0,0,0",
		"TASKLENGTH": "0,6,0,0,0,0",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, years, 1e-9)

	_, err = SimulatedYears(map[string]string{"CALENDAR": Calendar360, "TASKSTART": "1978,9,1,0,0,0"})
	assert.Error(t, err)
}
