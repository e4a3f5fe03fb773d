package batch_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/batch"
	"sftocsv/internal/record"
)

const numbersQuery = "select name from numbers__c where id in <in>"

func idRange(from, to int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// inSection extracts the comma-separated ids between the parentheses.
func inSection(query string) []string {
	_, rest, _ := strings.Cut(query, "(")
	body, _, _ := strings.Cut(rest, ")")
	return strings.Split(body, ",")
}

func TestBuildInQuery_FitsEverything(t *testing.T) {
	ids := idRange(50, 151)

	query, remaining, err := batch.BuildInQuery(numbersQuery, ids)
	require.NoError(t, err)

	assert.Equal(t, ids, inSection(query))
	assert.Empty(t, remaining)
	assert.True(t, strings.HasPrefix(query, "select name from numbers__c where id in ("))
}

func TestBuildInQuery_SplitsAtLimit(t *testing.T) {
	ids := idRange(100, 10101)

	query, remaining, err := batch.BuildInQuery(numbersQuery, ids)
	require.NoError(t, err)

	assert.Equal(t, ids, append(inSection(query), remaining...))
	assert.Less(t, len(query), batch.MaxQueryLen)
	assert.Len(t, query, 19996)
	assert.Len(t, remaining, 5830)
}

func TestBuildInQuery_Errors(t *testing.T) {
	_, _, err := batch.BuildInQuery("select Id from Account", []string{"1"})
	assert.ErrorIs(t, err, batch.ErrNoPlaceholder)

	_, _, err = batch.BuildInQuery(numbersQuery, nil)
	assert.ErrorIs(t, err, batch.ErrEmptyInput)

	_, _, err = batch.BuildInQuery(numbersQuery, []string{strings.Repeat("x", batch.MaxQueryLen)})
	assert.ErrorIs(t, err, batch.ErrIDTooLong)
}

func TestBuildInQuery_RepeatedPlaceholder(t *testing.T) {
	query, remaining, err := batch.BuildInQuery("a in <in> or b in <in>", []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, "a in (1,2) or b in (1,2)", query)
	assert.Empty(t, remaining)
}

func TestQueries_RoundTrip(t *testing.T) {
	ids := idRange(0, 12000)

	queries, err := batch.Queries(numbersQuery, ids)
	require.NoError(t, err)
	require.Greater(t, len(queries), 1)

	var joined []string
	for _, q := range queries {
		assert.Less(t, len(q), batch.MaxQueryLen)
		joined = append(joined, inSection(q)...)
	}
	assert.Equal(t, ids, joined)
}

func TestCollectFlat_ConcatenatesInBatchOrder(t *testing.T) {
	ids := idRange(1000, 9000)
	var calls int

	fetch := func(_ context.Context, q string) (record.Collection, error) {
		calls++
		out := record.Collection{}
		for _, id := range inSection(q) {
			out = append(out, record.New(record.F("Id", id)))
		}
		return out, nil
	}

	got, err := batch.CollectFlat(context.Background(), numbersQuery, ids, fetch)
	require.NoError(t, err)
	require.Len(t, got, len(ids))
	assert.Greater(t, calls, 1)

	last, _ := got[len(got)-1].Get("Id")
	assert.Equal(t, record.String("8999"), last)
}

func TestCollectFlat_StopsOnFirstError(t *testing.T) {
	boom := errors.New("remote failure")
	calls := 0
	fetch := func(_ context.Context, _ string) (record.Collection, error) {
		calls++
		return nil, boom
	}

	_, err := batch.CollectFlat(context.Background(), numbersQuery, idRange(0, 10000), fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "batch 1 of")
}

func TestCollectBag_MergesPerType(t *testing.T) {
	ids := idRange(1000, 9000)
	batchNo := 0
	var fetched []*record.Record

	fetch := func(_ context.Context, q string) (*record.Bag, error) {
		batchNo++
		bag := record.NewBag()
		if batchNo%2 == 0 {
			bag.Add("Even", record.New(record.F("batch", batchNo)))
		}
		rec := record.New(record.F("batch", batchNo))
		fetched = append(fetched, rec)
		bag.Add("All", rec)
		return bag, nil
	}

	got, err := batch.CollectBag(context.Background(), numbersQuery, ids, fetch)
	require.NoError(t, err)
	require.GreaterOrEqual(t, batchNo, 2)

	assert.Equal(t, []string{"All", "Even"}, got.Types())
	all, _ := got.Get("All")
	require.Len(t, all, batchNo)
	for i, r := range all {
		v, _ := r.Get("batch")
		assert.Equal(t, record.Number(i+1), v, fmt.Sprintf("row %d", i))
		assert.Same(t, fetched[i], r, "batch records are appended, not copied")
	}
}

func TestCollectFlat_PreconditionErrors(t *testing.T) {
	fetch := func(context.Context, string) (record.Collection, error) { return nil, nil }

	_, err := batch.CollectFlat(context.Background(), "no placeholder", []string{"1"}, fetch)
	assert.ErrorIs(t, err, batch.ErrNoPlaceholder)

	_, err = batch.CollectFlat(context.Background(), numbersQuery, nil, fetch)
	assert.ErrorIs(t, err, batch.ErrEmptyInput)
}

func TestQuoteIDs(t *testing.T) {
	assert.Equal(t, []string{"'001'", `'o\'b'`}, batch.QuoteIDs([]string{"001", "o'b"}))
}
