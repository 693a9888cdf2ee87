package likes

import (
	"context"
	"math/rand"
	"testing"

	"metaphorspace/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggle(t *testing.T) {
	s := Set{3, 7}

	s = s.Toggle(7)
	assert.Equal(t, Set{3}, s)

	s = s.Toggle(9)
	assert.Equal(t, Set{3, 9}, s)

	assert.True(t, s.Contains(9))
	assert.False(t, s.Contains(7))
}

func TestToggleDoesNotMutateReceiver(t *testing.T) {
	orig := Set{1, 2, 3}
	_ = orig.Toggle(2)
	_ = orig.Toggle(4)
	assert.Equal(t, Set{1, 2, 3}, orig)
}

// Even toggles of an id leave it out, odd toggles leave it in.
func TestToggleParity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		var s Set
		counts := map[int]int{}
		for i := 0; i < 200; i++ {
			id := rng.Intn(12)
			s = s.Toggle(id)
			counts[id]++
		}

		for id, n := range counts {
			assert.Equal(t, n%2 == 1, s.Contains(id), "id %d toggled %d times", id, n)
		}
		assert.Len(t, s, len(uniq(s)))
	}
}

func uniq(s Set) map[int]struct{} {
	m := map[int]struct{}{}
	for _, id := range s {
		m[id] = struct{}{}
	}
	return m
}

func TestEncodeDecode(t *testing.T) {
	data, err := Set{3, 9}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `[3,9]`, string(data))

	var empty Set
	data, err = empty.Encode()
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	got, err := Decode([]byte(`[4,4,1]`))
	require.NoError(t, err)
	assert.Equal(t, Set{4, 1}, got)

	_, err = Decode([]byte(`{"nope":1}`))
	assert.Error(t, err)
}

func TestLoadSave(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	st, err := store.NewHybridStore(mr.Addr(), "")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()

	s, err := Load(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, Save(ctx, st, Set{3, 7}))

	raw, err := mr.Get("pref:" + Key)
	require.NoError(t, err)
	assert.Equal(t, `[3,7]`, raw)

	s, err = Load(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, Set{3, 7}, s)
}
