package sqlrequest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaquery/internal/wire"
)

func mustZone(t *testing.T, id string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(id)
	require.NoError(t, err)
	return loc
}

func strPtr(s string) *string { return &s }

func roundTrip(t *testing.T, r *Request) *Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Serialize(wire.NewOutput(&buf)))
	got, err := Deserialize(wire.NewInput(&buf))
	require.NoError(t, err)
	return got
}

func TestNewQuery_DefaultsToUTC(t *testing.T) {
	r := NewQuery("SELECT 1")
	assert.Equal(t, time.UTC, r.TimeZone())
	_, ok := r.SessionID()
	assert.False(t, ok)
}

func TestNew_KeepsNilZone(t *testing.T) {
	r := New("SELECT 1", nil, nil)
	assert.Nil(t, r.TimeZone())
}

func TestNew_CopiesSessionID(t *testing.T) {
	id := "abc"
	r := New("SELECT 1", time.UTC, &id)
	id = "mutated"

	got, ok := r.SessionID()
	require.True(t, ok)
	assert.Equal(t, "abc", got)
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, NewQuery("SELECT 1").Validate())
	})

	t.Run("empty query", func(t *testing.T) {
		err := New("", time.UTC, nil).Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"sql query is missing"}, ve.Failures)
	})

	t.Run("whitespace only query", func(t *testing.T) {
		err := New(" \t\n ", time.UTC, nil).Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"sql query is missing"}, ve.Failures)
	})

	t.Run("nil zone", func(t *testing.T) {
		err := New("SELECT 1", nil, nil).Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"timezone is missing"}, ve.Failures)
	})

	t.Run("both failures reported together", func(t *testing.T) {
		err := New("", nil, nil).Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, []string{"sql query is missing", "timezone is missing"}, ve.Failures)
		assert.Equal(t, "Validation Failed: 1: sql query is missing;2: timezone is missing;", err.Error())
		assert.True(t, IsValidation(err))
	})

	t.Run("zones without a canonical id", func(t *testing.T) {
		for _, loc := range []*time.Location{
			time.Local,
			time.FixedZone("", 3600),
			time.FixedZone("EST5", -5*3600),
		} {
			err := New("SELECT 1", loc, nil).Validate()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve, loc.String())
			require.Len(t, ve.Failures, 1)
			assert.Contains(t, ve.Failures[0], "timezone is not a canonical zone id")
		}
	})

	t.Run("blank query and local zone", func(t *testing.T) {
		err := New("", time.Local, nil).Validate()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		require.Len(t, ve.Failures, 2)
		assert.Equal(t, "sql query is missing", ve.Failures[0])
	})

	t.Run("idempotent", func(t *testing.T) {
		r := New("", nil, strPtr("s1"))
		first := r.Validate()
		second := r.Validate()
		assert.Equal(t, first, second)
		assert.Equal(t, "", r.Query())
		assert.Nil(t, r.TimeZone())
	})
}

func TestSetters_Chain(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	r := New("", nil, nil).
		SetQuery("SELECT name FROM users").
		SetTimeZone(ny).
		SetSessionID("cursor-1")

	assert.Equal(t, "SELECT name FROM users", r.Query())
	assert.Equal(t, ny, r.TimeZone())
	id, ok := r.SessionID()
	require.True(t, ok)
	assert.Equal(t, "cursor-1", id)

	r.ClearSessionID()
	_, ok = r.SessionID()
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	cases := []*Request{
		NewQuery("SELECT 1"),
		NewContinuation("SELECT * FROM t", mustZone(t, "America/New_York"), "c-42"),
		NewContinuation("SELECT 'ünïcødé'", mustZone(t, "Asia/Ho_Chi_Minh"), ""),
		New("SELECT 2", mustZone(t, "Europe/Berlin"), nil),
	}

	for _, r := range cases {
		t.Run(r.Description(), func(t *testing.T) {
			got := roundTrip(t, r)

			assert.Equal(t, r.Query(), got.Query())
			assert.Equal(t, r.TimeZone().String(), got.TimeZone().String())

			wantID, wantOK := r.SessionID()
			gotID, gotOK := got.SessionID()
			assert.Equal(t, wantOK, gotOK)
			assert.Equal(t, wantID, gotID)

			assert.True(t, r.Equal(got))
		})
	}
}

func TestSerialize_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewQuery("q").Serialize(wire.NewOutput(&buf)))

	want := []byte{
		0, 0, 0, 1, 'q',
		0, 0, 0, 3, 'U', 'T', 'C',
		0, // no session id
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestSerialize_NilZonePanics(t *testing.T) {
	var buf bytes.Buffer
	assert.Panics(t, func() {
		_ = New("SELECT 1", nil, nil).Serialize(wire.NewOutput(&buf))
	})
}

func TestSerialize_RefusesZoneWithoutCanonicalID(t *testing.T) {
	for _, loc := range []*time.Location{
		time.Local,
		time.FixedZone("", 3600),
		time.FixedZone("EST5", -5*3600),
	} {
		var buf bytes.Buffer
		err := New("SELECT 1", loc, nil).Serialize(wire.NewOutput(&buf))
		require.ErrorIs(t, err, ErrUnknownTimeZone, loc.String())
		assert.Zero(t, buf.Len(), "nothing written for %q", loc.String())
	}
}

func TestRoundTrip_EveryValidZone(t *testing.T) {
	for _, id := range []string{"UTC", "America/New_York", "Asia/Kolkata", "Etc/GMT+5"} {
		r := New("SELECT 1", mustZone(t, id), nil)
		require.NoError(t, r.Validate(), id)
		got := roundTrip(t, r)
		assert.Equal(t, id, got.TimeZone().String())
	}
}

func TestDeserialize_UnknownZone(t *testing.T) {
	var buf bytes.Buffer
	out := wire.NewOutput(&buf)
	require.NoError(t, out.WriteString("SELECT 1"))
	require.NoError(t, out.WriteString("Not/AZone"))
	require.NoError(t, out.WriteOptionalString(nil))

	got, err := Deserialize(wire.NewInput(&buf))
	require.Nil(t, got)
	require.ErrorIs(t, err, ErrUnknownTimeZone)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "time_zone", de.Field)
	assert.True(t, IsDecode(err))
}

func TestDeserialize_RejectsNonCanonicalZones(t *testing.T) {
	for _, id := range []string{"", "Local", "+05:00"} {
		_, err := ParseTimeZone(id)
		require.ErrorIs(t, err, ErrUnknownTimeZone, id)
	}
}

func TestDeserialize_Truncated(t *testing.T) {
	full, err := NewContinuation("SELECT 1", time.UTC, "c-1").MarshalBinary()
	require.NoError(t, err)

	for cut := 0; cut < len(full); cut++ {
		_, err := Deserialize(wire.NewInput(bytes.NewReader(full[:cut])))
		require.Error(t, err, "cut=%d", cut)
		assert.True(t, IsDecode(err), "cut=%d", cut)
	}
}

func TestUnmarshalBinary_KeepsReceiverOnFailure(t *testing.T) {
	r := NewContinuation("SELECT keep", time.UTC, "c-1")

	err := r.UnmarshalBinary([]byte{0, 0, 0, 2, 'o', 'k'})
	require.Error(t, err)

	assert.Equal(t, "SELECT keep", r.Query())
	id, _ := r.SessionID()
	assert.Equal(t, "c-1", id)
}

func TestUnmarshalBinary(t *testing.T) {
	src := NewContinuation("SELECT 1", mustZone(t, "Asia/Tokyo"), "c-9")
	data, err := src.MarshalBinary()
	require.NoError(t, err)

	var dst Request
	require.NoError(t, dst.UnmarshalBinary(data))
	assert.True(t, src.Equal(&dst))
	assert.Equal(t, "Asia/Tokyo", dst.TimeZone().String())
}

// Time zone is not part of identity. Keep this pinned.
func TestEqualAndHash_IgnoreTimeZone(t *testing.T) {
	a := NewContinuation("SELECT 1", time.UTC, "s")
	b := NewContinuation("SELECT 1", mustZone(t, "America/New_York"), "s")

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.Equal(t, a.Hash(), b.Hash())

	before := a.Hash()
	a.SetTimeZone(mustZone(t, "Australia/Sydney"))
	assert.Equal(t, before, a.Hash())
}

func TestEqualAndHash_QueryAndSession(t *testing.T) {
	base := NewQuery("SELECT 1")

	assert.False(t, base.Equal(NewQuery("SELECT 2")))
	assert.NotEqual(t, base.Hash(), NewQuery("SELECT 2").Hash())

	withEmpty := NewContinuation("SELECT 1", time.UTC, "")
	assert.False(t, base.Equal(withEmpty), "absent and empty session ids differ")
	assert.NotEqual(t, base.Hash(), withEmpty.Hash())

	assert.False(t, NewContinuation("SELECT 1", time.UTC, "a").Equal(NewContinuation("SELECT 1", time.UTC, "b")))

	var nilReq *Request
	assert.False(t, base.Equal(nil))
	assert.True(t, nilReq.Equal(nil))
}

func TestHash_NoFieldBoundaryCollision(t *testing.T) {
	a := NewContinuation("ab", time.UTC, "c")
	b := NewContinuation("a", time.UTC, "bc")
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "SQL [SELECT 1/null]", NewQuery("SELECT 1").Description())
	assert.Equal(t, "SQL [SELECT 1/c-7]", NewContinuation("SELECT 1", time.UTC, "c-7").String())
}

func TestIntoValidated(t *testing.T) {
	t.Run("failures", func(t *testing.T) {
		_, err := New("  ", nil, nil).IntoValidated()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Len(t, ve.Failures, 2)
	})

	t.Run("snapshot is detached from the staging request", func(t *testing.T) {
		r := NewContinuation("SELECT 1", time.UTC, "s-1")
		v, err := r.IntoValidated()
		require.NoError(t, err)

		r.SetQuery("").SetTimeZone(nil).ClearSessionID()

		assert.Equal(t, "SELECT 1", v.Query())
		assert.Equal(t, time.UTC, v.TimeZone())
		id, ok := v.SessionID()
		require.True(t, ok)
		assert.Equal(t, "s-1", id)

		var buf bytes.Buffer
		require.NoError(t, v.Serialize(wire.NewOutput(&buf)))
		got, err := Deserialize(wire.NewInput(&buf))
		require.NoError(t, err)
		assert.True(t, v.Request().Equal(got))
	})

	t.Run("local zone is refused", func(t *testing.T) {
		_, err := New("SELECT 1", time.Local, nil).IntoValidated()
		require.True(t, IsValidation(err))
	})

	t.Run("zero value does not panic", func(t *testing.T) {
		var v Validated
		var buf bytes.Buffer
		require.NotPanics(t, func() {
			require.ErrorIs(t, v.Serialize(wire.NewOutput(&buf)), ErrNotValidated)
		})
		assert.Zero(t, buf.Len())
	})
}
