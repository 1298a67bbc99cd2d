package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLine = `{"__CURSOR":"s=1;i=2","__REALTIME_TIMESTAMP":"1700000000123456","_HOSTNAME":"web1","MESSAGE":"hello","PRIORITY":"6"}`

func TestParse(t *testing.T) {
	p := NewParser()

	t.Run("decodes a journal record", func(t *testing.T) {
		rec, err := p.Parse([]byte(sampleLine + "\n"))
		require.NoError(t, err)
		assert.Equal(t, "s=1;i=2", rec.Cursor)
		assert.Equal(t, int64(1700000000123456), rec.Realtime)
		assert.Equal(t, int64(1700000000123), rec.Millis)

		msg, ok := rec.Get("MESSAGE")
		assert.True(t, ok)
		assert.Equal(t, "hello", msg)
		assert.Equal(t, "web1", rec.Fields["_HOSTNAME"])
	})

	t.Run("truncates to milliseconds", func(t *testing.T) {
		rec, err := p.Parse([]byte(`{"__CURSOR":"c","__REALTIME_TIMESTAMP":"1999"}`))
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Millis)
	})

	t.Run("accepts numeric timestamp", func(t *testing.T) {
		rec, err := p.Parse([]byte(`{"__CURSOR":"c","__REALTIME_TIMESTAMP":5000}`))
		require.NoError(t, err)
		assert.Equal(t, int64(5), rec.Millis)
	})

	t.Run("keeps binary fields as raw JSON", func(t *testing.T) {
		rec, err := p.Parse([]byte(`{"__CURSOR":"c","__REALTIME_TIMESTAMP":"1","MESSAGE":[104,105]}`))
		require.NoError(t, err)
		assert.Equal(t, "[104,105]", rec.Fields["MESSAGE"])
	})
}

func TestParseMalformed(t *testing.T) {
	p := NewParser()
	cases := map[string]string{
		"empty":           "",
		"not json":        "-- Journal begins at Mon --",
		"truncated":       `{"__CURSOR":"c",`,
		"array":           `["__CURSOR"]`,
		"missing cursor":  `{"__REALTIME_TIMESTAMP":"1"}`,
		"empty cursor":    `{"__CURSOR":"","__REALTIME_TIMESTAMP":"1"}`,
		"numeric cursor":  `{"__CURSOR":12,"__REALTIME_TIMESTAMP":"1"}`,
		"missing time":    `{"__CURSOR":"c"}`,
		"fractional time": `{"__CURSOR":"c","__REALTIME_TIMESTAMP":"1.5"}`,
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := p.Parse([]byte(line))
			require.ErrorIs(t, err, ErrMalformed)
			assert.Nil(t, rec)
		})
	}
}

func TestGjsonKey(t *testing.T) {
	assert.Equal(t, "__CURSOR", gjsonKey("__CURSOR"))
	assert.Equal(t, `a\.b`, gjsonKey("a.b"))
}
