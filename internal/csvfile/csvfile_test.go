package csvfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/record"
)

func rows(docs ...string) record.Collection {
	out := make(record.Collection, len(docs))
	for i, d := range docs {
		out[i] = record.MustParse(d)
	}
	return out
}

func TestWrite_Golden(t *testing.T) {
	recs := rows(
		`{"Id":"001","Name":"Acme, Inc.","Amount":1200.5,"Active":true}`,
		`{"Id":"002","Name":"Globex","Region":"EMEA","Notes":null}`,
		`{"Id":"003","Name":"Quote \"q\"","Tags":["a","b"]}`,
	)

	var buf bytes.Buffer
	require.NoError(t, csvfile.Write(&buf, recs))

	g := goldie.New(t)
	g.Assert(t, "accounts", buf.Bytes())
}

func TestWriteBag_OneFilePerType(t *testing.T) {
	dir := t.TempDir()
	bag := record.NewBag()
	bag.Add("Account", record.MustParse(`{"Id":"a1","Name":"Acme"}`))
	bag.Add("Contact",
		record.MustParse(`{"Account":"a1","Id":"c1","Email":"c1@example.com"}`),
		record.MustParse(`{"Account":"a1","Id":"c2"}`),
	)

	paths, err := csvfile.WriteBag(bag, filepath.Join(dir, "export.csv"), false)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "export_Account.csv"),
		filepath.Join(dir, "export_Contact.csv"),
	}, paths)

	g := goldie.New(t)
	for _, typ := range bag.Types() {
		data, err := os.ReadFile(csvfile.BagPath(filepath.Join(dir, "export"), typ))
		require.NoError(t, err)
		g.Assert(t, "bag_"+typ, data)
	}
}

func TestWriteRecords_AppendUnionsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")

	require.NoError(t, csvfile.WriteRecords(rows(`{"Id":"1","Name":"first"}`), path, false))
	require.NoError(t, csvfile.WriteRecords(rows(`{"Id":"2","Email":"x@y.z"}`), path+".csv", true))

	data, err := os.ReadFile(path + ".csv")
	require.NoError(t, err)
	assert.Equal(t, "Id,Name,Email\n1,first,\n2,,x@y.z\n", string(data))
}

func TestWriteRecords_OverwriteWithoutAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	require.NoError(t, csvfile.WriteRecords(rows(`{"a":1}`), path, false))
	require.NoError(t, csvfile.WriteRecords(rows(`{"b":2}`), path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b\n2\n", string(data))
}

func TestWriteRecords_AppendToMissingFileCreatesIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.csv")

	require.NoError(t, csvfile.WriteRecords(rows(`{"a":1}`), path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n", string(data))
}

func TestRead_HeaderlessWithConverter(t *testing.T) {
	in := strings.NewReader("1;x\n2;y;extra\n")
	recs, err := csvfile.Read(in, csvfile.Options{
		Delimiter: ';',
		Convert: func(s string) record.Value {
			if s == "1" {
				return record.Number(1)
			}
			return record.String(s)
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, []string{"col_1", "col_2"}, recs[0].Keys())
	v, _ := recs[0].Get("col_1")
	assert.Equal(t, record.Number(1), v)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "out.csv", csvfile.Path("out"))
	assert.Equal(t, "out.csv", csvfile.Path("out.csv"))
	assert.Equal(t, "out_Account.csv", csvfile.BagPath("out.csv", "Account"))
}

func TestKeyList(t *testing.T) {
	got := csvfile.KeyList(rows(`{"a":1,"b":2}`, `{"b":3,"c":4}`, `{"d":5,"a":6}`))
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}
