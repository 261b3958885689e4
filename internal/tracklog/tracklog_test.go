package tracklog_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/pgtrack/internal/tracklog"
)

func at(day, hour int) time.Time {
	return time.Date(2024, time.March, day, hour, 30, 15, 0, time.Local)
}

func TestHeader(t *testing.T) {
	t.Parallel()

	got := tracklog.Header(at(2, 9), "jane \t doe")
	assert.Equal(t, "# log 2024-03-02 09:30:15 jane doe\n", got)
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []tracklog.Entry
	}{
		{
			name: "empty text",
			text: "",
		},
		{
			name: "only the seed newline",
			text: "\n",
		},
		{
			name: "single entry",
			text: "# log 2024-03-02 09:30:15 alice\nCREATE TABLE t (id INT);\n",
			want: []tracklog.Entry{{
				Date:      "2024-03-02 09:30:15",
				At:        at(2, 9),
				Username:  "alice",
				Statement: "CREATE TABLE t (id INT);",
			}},
		},
		{
			name: "appended entries keep order",
			text: "\n# log 2024-03-02 09:30:15 alice\nINSERT INTO t VALUES (1);\n" +
				"\n# log 2024-03-03 10:30:15 bob\nDELETE FROM t;\n",
			want: []tracklog.Entry{
				{Date: "2024-03-02 09:30:15", At: at(2, 9), Username: "alice", Statement: "INSERT INTO t VALUES (1);"},
				{Date: "2024-03-03 10:30:15", At: at(3, 10), Username: "bob", Statement: "DELETE FROM t;"},
			},
		},
		{
			name: "multi-line statement",
			text: "# log 2024-03-02 09:30:15 alice\nCREATE TABLE t (\n  id INT\n);\n",
			want: []tracklog.Entry{{
				Date:      "2024-03-02 09:30:15",
				At:        at(2, 9),
				Username:  "alice",
				Statement: "CREATE TABLE t (\n  id INT\n);",
			}},
		},
		{
			name: "truncated chunk is skipped",
			text: "# log 2024-03-02",
		},
		{
			name: "header without statement",
			text: "# log 2024-03-02 09:30:15 alice",
			want: []tracklog.Entry{{Date: "2024-03-02 09:30:15", At: at(2, 9), Username: "alice"}},
		},
		{
			name: "multibyte username",
			text: "# log 2024-03-02 09:30:15 Jürgen\nTRUNCATE t;",
			want: []tracklog.Entry{{Date: "2024-03-02 09:30:15", At: at(2, 9), Username: "Jürgen", Statement: "TRUNCATE t;"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tracklog.Parse(tt.text)
			require.Len(t, got, len(tt.want))

			for i := range tt.want {
				assert.Equal(t, tt.want[i].Date, got[i].Date)
				assert.True(t, tt.want[i].At.Equal(got[i].At), "time of entry %d", i)
				assert.Equal(t, tt.want[i].Username, got[i].Username)
				assert.Equal(t, tt.want[i].Statement, got[i].Statement)
			}
		})
	}
}

// TestParse_generated writes random entries the way the tracker appends them
// and checks every field comes back unchanged.
func TestParse_generated(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data
	users := []string{"alice", "bob", "ünïcode", "x"}
	verbs := []string{"INSERT INTO t VALUES (%d);", "UPDATE t SET a = %d;", "DELETE FROM t WHERE id = %d;"}

	for round := 0; round < 50; round++ {
		var (
			b    strings.Builder
			want []tracklog.Entry
		)

		b.WriteString("\n")

		base := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.Local)

		n := rng.Intn(8)
		for i := 0; i < n; i++ {
			when := base.Add(time.Duration(rng.Intn(1_000_000)) * time.Second)
			user := users[rng.Intn(len(users))]
			stmt := fmt.Sprintf(verbs[rng.Intn(len(verbs))], rng.Intn(1000))

			b.WriteString("\n" + tracklog.Format(when, user, stmt))
			want = append(want, tracklog.Entry{At: when, Username: user, Statement: stmt})
		}

		got := tracklog.Parse(b.String())
		require.Len(t, got, len(want), "round %d", round)

		for i := range want {
			assert.True(t, want[i].At.Equal(got[i].At))
			assert.Equal(t, want[i].Username, got[i].Username)
			assert.Equal(t, want[i].Statement, got[i].Statement)
		}
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	assert.True(t, at(2, 9).Equal(tracklog.ParseTime("2024-03-02 09:30:15")))
	assert.False(t, tracklog.ParseTime("2024-03-02T09:30:15").IsZero(), "dateparse fallback")
	assert.True(t, tracklog.ParseTime("garbage-garbage-xx").IsZero())
}

func TestRange(t *testing.T) {
	t.Parallel()

	now := at(20, 12)
	ddl := []tracklog.Entry{{At: at(2, 9)}, {At: at(5, 9)}}
	dml := []tracklog.Entry{{At: at(3, 9)}, {At: at(8, 9)}}

	t.Run("both logs", func(t *testing.T) {
		t.Parallel()

		from, to := tracklog.Range(ddl, dml, now)
		assert.True(t, from.Equal(at(2, 9)))
		assert.True(t, to.Equal(at(8, 9)))
	})

	t.Run("data log earlier", func(t *testing.T) {
		t.Parallel()

		from, to := tracklog.Range(dml[1:], []tracklog.Entry{{At: at(1, 9)}, {At: at(4, 9)}}, now)
		assert.True(t, from.Equal(at(1, 9)))
		assert.True(t, to.Equal(at(8, 9)))
	})

	t.Run("empty data log falls back to now", func(t *testing.T) {
		t.Parallel()

		from, to := tracklog.Range(ddl, nil, now)
		assert.True(t, from.Equal(at(2, 9)))
		assert.True(t, to.Equal(now))
	})

	t.Run("both empty", func(t *testing.T) {
		t.Parallel()

		from, to := tracklog.Range(nil, nil, now)
		assert.True(t, from.Equal(now))
		assert.True(t, to.Equal(now))
	})
}

func TestFilter(t *testing.T) {
	t.Parallel()

	entries := []tracklog.Entry{{At: at(1, 9)}, {At: at(5, 9)}, {At: at(9, 9)}}

	assert.Len(t, tracklog.Filter(entries, time.Time{}, time.Time{}), 3)
	assert.Len(t, tracklog.Filter(entries, at(2, 0), time.Time{}), 2)
	assert.Len(t, tracklog.Filter(entries, at(2, 0), at(6, 0)), 1)
	assert.Empty(t, tracklog.Filter(entries, at(10, 0), time.Time{}))
}
