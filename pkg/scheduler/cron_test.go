package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCron_Expr(t *testing.T) {
	tests := []struct {
		name string
		cron Cron
		want string
	}{
		{"nothing set runs every second", Cron{}, "* * * * * * *"},
		{"hour pins lower fields", Cron{Hour: "8"}, "0 0 8 * * * *"},
		{"minute and hour", Cron{Minute: "*", Hour: "*"}, "0 * * * * * *"},
		{"second set", Cron{Second: "*/10"}, "*/10 * * * * * *"},
		{"month pins day", Cron{Month: "6"}, "0 0 0 1 6 * *"},
		{"day of week keeps wildcard weekday", Cron{DayOfWeek: "1-5", Hour: "9", Minute: "30"}, "0 30 9 * * 1-5 *"},
		{"year", Cron{Year: "2030", Month: "1", Day: "1"}, "0 0 0 1 1 * 2030"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cron.Expr())
		})
	}
}

func TestCron_String(t *testing.T) {
	c := Cron{Minute: "*", Hour: "*", Timezone: "America/Chicago"}
	assert.Equal(t, "cron[hour='*', minute='*', timezone='America/Chicago']", c.String())
	assert.Equal(t, "cron[]", Cron{}.String())
}

func TestCron_Validate(t *testing.T) {
	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name    string
		cron    Cron
		wantErr bool
	}{
		{"valid", Cron{Minute: "*/5", Timezone: "America/Chicago"}, false},
		{"bad timezone", Cron{Timezone: "Mars/Olympus"}, true},
		{"bad expression", Cron{Hour: "x"}, true},
		{"bad week", Cron{Week: "60"}, true},
		{"end before start", Cron{StartDate: &start, EndDate: &end}, true},
		{"negative jitter", Cron{Jitter: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cron.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCron_IsDue(t *testing.T) {
	c := Cron{Hour: "8", Timezone: "UTC"}

	due, err := c.IsDue(time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)

	due, err = c.IsDue(time.Date(2030, 3, 4, 8, 0, 1, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = c.IsDue(time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestCron_IsDue_Timezone(t *testing.T) {
	c := Cron{Hour: "8", Timezone: "America/Chicago"}
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	due, err := c.IsDue(time.Date(2030, 3, 4, 8, 0, 0, 0, loc).UTC())
	require.NoError(t, err)
	assert.True(t, due)
}

func TestCron_IsDue_DateBounds(t *testing.T) {
	start := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	end := time.Date(2030, 3, 5, 0, 0, 0, 0, time.UTC)
	c := Cron{Minute: "*", StartDate: &start, EndDate: &end, Timezone: "UTC"}

	due, _ := c.IsDue(time.Date(2030, 3, 3, 12, 0, 0, 0, time.UTC))
	assert.False(t, due)
	due, _ = c.IsDue(time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC))
	assert.True(t, due)
	due, _ = c.IsDue(time.Date(2030, 3, 6, 12, 0, 0, 0, time.UTC))
	assert.False(t, due)
}

func TestCron_IsDue_ISOWeek(t *testing.T) {
	// 2030-01-07 is a Monday in ISO week 2
	c := Cron{Week: "2", Timezone: "UTC"}

	due, err := c.IsDue(time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, due)

	due, err = c.IsDue(time.Date(2030, 1, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestCron_IsDue_DayAndWeekdayBothMatch(t *testing.T) {
	c := Cron{Day: "1", DayOfWeek: "1", Timezone: "UTC"}
	require.NoError(t, c.Validate())

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday the first", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"monday the eighth", time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC), false},
		{"wednesday the first", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), false},
		{"monday the first, later", time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due, err := c.IsDue(tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, due)
		})
	}
}

func TestCron_Next(t *testing.T) {
	next, err := Cron{Hour: "8", Timezone: "UTC"}.Next(time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2030, 3, 5, 8, 0, 0, 0, time.UTC)), next.String())

	c := Cron{Day: "1", DayOfWeek: "1", Timezone: "UTC"}
	next, err = c.Next(time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)), next.String())

	// the next Monday that falls on the first is 2027-02-01
	next, err = c.Next(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)), next.String())
}

func TestMatchField(t *testing.T) {
	tests := []struct {
		expr string
		v    int
		want bool
	}{
		{"*", 7, true},
		{"7", 7, true},
		{"7", 8, false},
		{"1-10", 10, true},
		{"1-10", 11, false},
		{"*/2", 3, true},
		{"*/2", 4, false},
		{"2-10/4", 6, true},
		{"2-10/4", 8, false},
		{"5/10", 15, true},
		{"1,20,30", 20, true},
	}

	for _, tt := range tests {
		got, err := matchField(tt.expr, tt.v, 1, 53)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, "%s ~ %d", tt.expr, tt.v)
	}

	for _, bad := range []string{"x", "0", "54", "10-2", "*/0", "1-x"} {
		_, err := matchField(bad, 1, 1, 53)
		assert.Error(t, err, bad)
	}
}
