package record_test

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/record"
)

func TestBag_TypeOrderIsFirstSeen(t *testing.T) {
	b := record.NewBag()
	b.Add("Contact", record.MustParse(`{"Id":"c1"}`))
	b.Add("Account", record.MustParse(`{"Id":"a1"}`))
	b.Add("Contact", record.MustParse(`{"Id":"c2"}`))

	assert.Equal(t, []string{"Contact", "Account"}, b.Types())
	assert.Equal(t, 3, b.Count())

	contacts, ok := b.Get("Contact")
	require.True(t, ok)
	require.Len(t, contacts, 2)
	id, _ := contacts[1].Get("Id")
	assert.Equal(t, record.String("c2"), id)
}

func TestMergeBags_ConcatenatesPerType(t *testing.T) {
	first := record.NewBag()
	first.Add("A", record.MustParse(`{"n":1}`))
	first.Add("B", record.MustParse(`{"n":2}`))

	second := record.NewBag()
	second.Add("C", record.MustParse(`{"n":3}`))
	second.Add("A", record.MustParse(`{"n":4}`))

	merged := record.MergeBags(first, second)

	assert.Equal(t, []string{"A", "B", "C"}, merged.Types())
	a, _ := merged.Get("A")
	require.Len(t, a, 2)
	n, _ := a[1].Get("n")
	assert.Equal(t, record.Number(4), n)

	// inputs untouched
	orig, _ := first.Get("A")
	assert.Len(t, orig, 1)
}

func TestMergeBags_NilSide(t *testing.T) {
	b := record.NewBag()
	b.Add("A", record.MustParse(`{"n":1}`))

	merged := record.MergeBags(nil, b)
	assert.Equal(t, 1, merged.Count())
}

func TestBag_ExtendAppendsWithoutCopying(t *testing.T) {
	b := record.NewBag()
	b.Add("A", record.MustParse(`{"n":1}`))

	src := record.NewBag()
	shared := record.MustParse(`{"n":2}`)
	src.Add("B", record.MustParse(`{"n":3}`))
	src.Add("A", shared)

	b.Extend(src)
	assert.Equal(t, []string{"A", "B"}, b.Types())
	a, _ := b.Get("A")
	require.Len(t, a, 2)
	assert.Same(t, shared, a[1])

	b.Add("A", record.MustParse(`{"n":4}`))
	srcA, _ := src.Get("A")
	assert.Len(t, srcA, 1)

	b.Extend(nil)
	assert.Equal(t, 4, b.Count())
}

func TestBag_JSONRoundTrip(t *testing.T) {
	b := record.NewBag()
	b.Add("Z", record.MustParse(`{"Id":"z"}`))
	b.Add("A", record.MustParse(`{"Id":"a","Z":"z"}`))

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"Z":[{"Id":"z"}],"A":[{"Id":"a","Z":"z"}]}`, string(data))

	back := record.NewBag()
	require.NoError(t, json.Unmarshal(data, back))
	assert.Equal(t, []string{"Z", "A"}, back.Types())
}
