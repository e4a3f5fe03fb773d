package sources_test

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"sftocsv/internal/etl"
	"sftocsv/internal/etl/sources"
	"sftocsv/internal/record"
)

// readAll drains a source and groups records by type.
func readAll(t *testing.T, typ string, cfg etl.SourceConfig) (map[string]record.Collection, error) {
	t.Helper()
	src, err := etl.GetSource(typ)
	require.NoError(t, err)

	recCh, errCh := src.Read(context.Background(), cfg)
	out := map[string]record.Collection{}
	for rec := range recCh {
		out[rec.Type] = append(out[rec.Type], rec.Data)
	}
	return out, <-errCh
}

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// ─────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────

func TestRegistry_AllSourcesRegistered(t *testing.T) {
	var types []string
	for _, spec := range etl.ListSources() {
		types = append(types, spec.Type)
	}
	assert.Equal(t, []string{"csv_file", "database", "http", "json_file", "mongo", "soql"}, types)
}

// ─────────────────────────────────────────────────────────────
// csv_file
// ─────────────────────────────────────────────────────────────

func TestCSVFile_InfersTypes(t *testing.T) {
	path := writeTemp(t, "in.csv", "Id,Amount,Active,Code,Note\n001A,12.5,true,007,\n")

	got, err := readAll(t, "csv_file", etl.SourceConfig{"filePath": path})
	require.NoError(t, err)
	require.Len(t, got[""], 1)

	rec := got[""][0]
	amount, _ := rec.Get("Amount")
	assert.Equal(t, record.Number(12.5), amount)
	active, _ := rec.Get("Active")
	assert.Equal(t, record.Bool(true), active)
	code, _ := rec.Get("Code")
	assert.Equal(t, record.String("007"), code)
	note, _ := rec.Get("Note")
	assert.True(t, record.IsNull(note))
}

func TestCSVFile_TextOnly(t *testing.T) {
	path := writeTemp(t, "in.csv", "a;b\n1;2\n")
	got, err := readAll(t, "csv_file", etl.SourceConfig{"filePath": path, "delimiter": ";", "inferTypes": false})
	require.NoError(t, err)
	v, _ := got[""][0].Get("b")
	assert.Equal(t, record.String("2"), v)
}

func TestCSVFile_MissingFile(t *testing.T) {
	_, err := readAll(t, "csv_file", etl.SourceConfig{"filePath": filepath.Join(t.TempDir(), "none.csv")})
	assert.ErrorContains(t, err, "open file")
}

// ─────────────────────────────────────────────────────────────
// json_file
// ─────────────────────────────────────────────────────────────

const accountsJSON = `{"data":{"items":[
	{"Name":"Acme","Id":"a1","Owner":{"Email":"o@x.io"}},
	{"Name":"Globex","Id":"a2"}
]}}`

func TestJSONFile_DotPathKeepsOrder(t *testing.T) {
	path := writeTemp(t, "in.json", accountsJSON)
	got, err := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "data.items"})
	require.NoError(t, err)
	require.Len(t, got[""], 2)
	assert.Equal(t, []string{"Name", "Id", "Owner"}, got[""][0].Keys())
}

func TestJSONFile_JSONPath(t *testing.T) {
	path := writeTemp(t, "in.json", accountsJSON)
	got, err := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "$.data.items[*]"})
	require.NoError(t, err)
	require.Len(t, got[""], 2)
	name, _ := got[""][1].Get("Name")
	assert.Equal(t, record.String("Globex"), name)
}

func TestJSONFile_BadPath(t *testing.T) {
	path := writeTemp(t, "in.json", accountsJSON)
	_, err := readAll(t, "json_file", etl.SourceConfig{"filePath": path, "dataPath": "data.missing"})
	assert.ErrorContains(t, err, "not found")
}

// ─────────────────────────────────────────────────────────────
// http
// ─────────────────────────────────────────────────────────────

func TestHTTP_FetchesWithHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `{"results":[{"code":"EU","label":"Europe"}]}`)
	}))
	defer srv.Close()

	got, err := readAll(t, "http", etl.SourceConfig{
		"url":      srv.URL,
		"headers":  map[string]any{"X-Api-Key": "secret"},
		"dataPath": "results",
	})
	require.NoError(t, err)
	require.Len(t, got[""], 1)
}

func TestHTTP_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := readAll(t, "http", etl.SourceConfig{"url": srv.URL})
	assert.ErrorContains(t, err, "http 403")
}

// ─────────────────────────────────────────────────────────────
// database
// ─────────────────────────────────────────────────────────────

func TestDatabase_SQLitePaging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crm.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE regions (code TEXT, label TEXT)`)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = db.Exec(`INSERT INTO regions VALUES (?, ?)`, fmt.Sprintf("R%d", i), "label")
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	got, err := readAll(t, "database", etl.SourceConfig{
		"driver":    "sqlite",
		"host":      path,
		"query":     "SELECT code, label FROM regions ORDER BY code",
		"fetchSize": 2,
	})
	require.NoError(t, err)
	require.Len(t, got[""], 5)
	code, _ := got[""][4].Get("code")
	assert.Equal(t, record.String("R4"), code)
}

func TestDatabase_PasswordEnvMissing(t *testing.T) {
	_, err := readAll(t, "database", etl.SourceConfig{
		"driver": "postgres", "host": "db", "query": "SELECT 1", "passwordEnv": "SFTOCSV_TEST_UNSET_PW",
	})
	assert.ErrorContains(t, err, "SFTOCSV_TEST_UNSET_PW")
}

// ─────────────────────────────────────────────────────────────
// mongo
// ─────────────────────────────────────────────────────────────

func TestMongoQuery_Find(t *testing.T) {
	q, err := sources.MongoQuery(etl.SourceConfig{
		"collection": "orders",
		"filter":     map[string]any{"status": "open"},
		"limit":      10,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":"orders","filter":{"status":"open"},"limit":10}`, q)
}

func TestMongoQuery_PipelineText(t *testing.T) {
	q, err := sources.MongoQuery(etl.SourceConfig{
		"collection": "orders",
		"pipeline":   `[{"$match":{"total":{"$gt":5}}}]`,
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(q, `"operation":"aggregate"`))
	assert.True(t, strings.Contains(q, `"$match"`))
}

// ─────────────────────────────────────────────────────────────
// soql
// ─────────────────────────────────────────────────────────────

type fakeClient struct {
	queries []string
	ids     []string
}

func (f *fakeClient) Query(ctx context.Context, soql string) (record.Collection, error) {
	f.queries = append(f.queries, soql)
	return record.Collection{record.MustParse(`{"Id":"a1"}`)}, nil
}

func (f *fakeClient) QueryNested(ctx context.Context, soql string) (*record.Bag, error) {
	f.queries = append(f.queries, soql)
	bag := record.NewBag()
	bag.Add("Account", record.MustParse(`{"Id":"a1"}`))
	bag.Add("Contact", record.MustParse(`{"Account":"a1","Id":"c1"}`), record.MustParse(`{"Account":"a1","Id":"c2"}`))
	return bag, nil
}

func (f *fakeClient) LargeInQuery(ctx context.Context, template string, ids []string) (record.Collection, error) {
	f.queries = append(f.queries, template)
	f.ids = ids
	return record.Collection{}, nil
}

func (f *fakeClient) LargeInQueryNested(ctx context.Context, template string, ids []string) (*record.Bag, error) {
	f.ids = ids
	return record.NewBag(), nil
}

func TestSOQL_NestedEmitsTypes(t *testing.T) {
	fc := &fakeClient{}
	sources.SetQueryClient(fc)
	defer sources.SetQueryClient(nil)

	got, err := readAll(t, "soql", etl.SourceConfig{"query": "SELECT Id, (SELECT Id FROM Contacts) FROM Account", "nested": true})
	require.NoError(t, err)
	assert.Len(t, got["Account"], 1)
	assert.Len(t, got["Contact"], 2)
}

func TestSOQL_LargeInQuotesIDs(t *testing.T) {
	fc := &fakeClient{}
	sources.SetQueryClient(fc)
	defer sources.SetQueryClient(nil)

	idsFile := writeTemp(t, "ids.txt", "a2\n\n a3 \n")
	_, err := readAll(t, "soql", etl.SourceConfig{
		"query":   "SELECT Id FROM Account WHERE Id IN <in>",
		"ids":     []any{"a1"},
		"idsFile": idsFile,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"'a1'", "'a2'", "'a3'"}, fc.ids)
}

func TestSOQL_NoClient(t *testing.T) {
	sources.SetQueryClient(nil)
	_, err := readAll(t, "soql", etl.SourceConfig{"query": "SELECT Id FROM Account"})
	assert.ErrorContains(t, err, "not initialized")
}
