package cli

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/csvfile"
)

// isolate points every file the CLI touches at a temp dir and clears
// credentials from the environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SFTOCSV_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SFTOCSV_JOBS_DIR", filepath.Join(dir, "jobs"))
	t.Setenv("SF_TOKEN_STORE", filepath.Join(dir, "tokens.json"))
	t.Setenv("SFTOCSV_SEQ_URL", "")
	for _, k := range []string{"SF_ACCESS_TOKEN", "SF_CLIENT_ID", "SF_CLIENT_SECRET", "SF_KEY_TAG"} {
		t.Setenv(k, "")
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"query", "large-in", "join", "flatten", "run", "watch", "jobs", "sources", "token", "mcp"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, path := range [][]string{{"jobs", "list"}, {"jobs", "runs"}, {"jobs", "queries"}, {"token", "flush"}, {"sources", "preview"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[1], sub.Name())
	}
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	mcp, _, err := cmd.Find([]string{"mcp"})
	require.NoError(t, err)
	allowRun := mcp.Flags().Lookup("allow-run")
	require.NotNil(t, allowRun)
	assert.Equal(t, "false", allowRun.DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--format", "xml", "sources")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "sources")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSources_ListsRegisteredTypes(t *testing.T) {
	isolate(t)
	out, err := execute(t, "sources")
	require.NoError(t, err)
	for _, typ := range []string{"soql", "csv_file", "json_file", "http", "database", "mongo"} {
		assert.Contains(t, out, typ)
	}
}

func TestSourcesPreview_CSV(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "a.csv", "Id,Amount\na1,10\na2,20\na3,30\n")

	out, err := execute(t, "sources", "preview", "csv_file", "--set", "filePath="+path, "--rows", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "# Amount: number")
	assert.Contains(t, out, "a2,20")
	assert.NotContains(t, out, "a3")
}

func TestJoin_InnerCSV(t *testing.T) {
	dir := isolate(t)
	left := writeFile(t, dir, "contacts.csv", "Id,AccountId\nc1,a1\nc2,a9\n")
	right := writeFile(t, dir, "accounts.csv", "AcctId,Name\na1,Acme\n")

	out, err := execute(t, "join", left, right, "--left-key", "AccountId", "--right-key", "AcctId")
	require.NoError(t, err)
	assert.Equal(t, "Id,AccountId,Name\nc1,a1,Acme\n", out)
}

func TestJoin_OuterToFile(t *testing.T) {
	dir := isolate(t)
	left := writeFile(t, dir, "l.json", `[{"Key":1,"L":"a"},{"Key":2,"L":"b"}]`)
	right := writeFile(t, dir, "r.json", `{"records":[{"Key":2,"R":"x"},{"Key":3,"R":"y"}]}`)
	dest := filepath.Join(dir, "joined")

	_, err := execute(t, "join", left, right, "--kind", "outer", "--key", "Key", "--side", "full", "--out", dest)
	require.NoError(t, err)

	rows, err := csvfile.ReadRecords(dest + ".csv")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestJoin_Errors(t *testing.T) {
	dir := isolate(t)
	left := writeFile(t, dir, "l.csv", "Id\n1\n")
	right := writeFile(t, dir, "r.csv", "Id\n1\n")

	_, err := execute(t, "join", left, right)
	assert.Equal(t, ExitCommandError, GetExitCode(err), "inner join without keys")

	_, err = execute(t, "join", left, right, "--kind", "outer", "--key", "Id")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "outer join without side")

	_, err = execute(t, "join", left, filepath.Join(dir, "r.txt"), "--key", "Id")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "unsupported input")
}

func TestFlatten_WritesOneFilePerType(t *testing.T) {
	dir := isolate(t)
	in := writeFile(t, dir, "resp.json", `{"done":true,"records":[
		{"attributes":{"type":"Account"},"Id":"a1","Name":"Acme",
		 "Contacts":{"done":true,"records":[{"attributes":{"type":"Contact"},"Id":"c1"}]}}]}`)
	prefix := filepath.Join(dir, "export")

	_, err := execute(t, "flatten", in, "--out", prefix)
	require.NoError(t, err)

	accounts, err := csvfile.ReadRecords(prefix + "_Account.csv")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, []string{"Id", "Name"}, accounts.Keys())

	contacts, err := csvfile.ReadRecords(prefix + "_Contact.csv")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, []string{"Account", "Id"}, contacts.Keys())
}

func TestLargeIn_DryRun(t *testing.T) {
	dir := isolate(t)
	idsFile := writeFile(t, dir, "ids.csv", "Id,Name\na3,x\n,y\n")

	out, err := execute(t, "large-in", "SELECT Id FROM Account WHERE Id IN <in>", "--ids", "a1, a2", "--ids-file", idsFile, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id FROM Account WHERE Id IN ('a1','a2','a3')\n", out)

	out, err = execute(t, "large-in", "SELECT Id FROM Account WHERE Num IN <in>", "--ids", "1,2", "--no-quote", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id FROM Account WHERE Num IN (1,2)\n", out)
}

func TestLargeIn_Validation(t *testing.T) {
	isolate(t)
	_, err := execute(t, "large-in", "SELECT Id FROM Account", "--ids", "a1", "--dry-run")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "large-in", "SELECT Id FROM Account WHERE Id IN <in>", "--dry-run")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQuery_NoToken(t *testing.T) {
	isolate(t)
	t.Setenv("SF_BASE_URL", "https://example.my.salesforce.com")
	_, err := execute(t, "query", "SELECT Id FROM Account")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQuery_RemoteErrorExitsOneAndIsLogged(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `[{"errorCode":"MALFORMED_QUERY"}]`)
	}))
	defer srv.Close()
	t.Setenv("SF_BASE_URL", srv.URL)
	t.Setenv("SF_ACCESS_TOKEN", "tok")

	_, err := execute(t, "query", "SELEC Id FROM Account")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "remote query failed")
	assert.Contains(t, err.Error(), "MALFORMED_QUERY")

	out, err := execute(t, "jobs", "queries")
	require.NoError(t, err)
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "SELEC Id FROM Account")
}

func TestRun_JobFileRecordsHistory(t *testing.T) {
	dir := isolate(t)
	src := writeFile(t, dir, "accounts.csv", "Id,Name\na1,Acme\na2,Globex\n")
	dest := filepath.Join(dir, "out", "accounts")
	job := writeFile(t, dir, "copy.yaml", `
inputs:
  - name: accounts
    source: csv_file
    config: {filePath: `+src+`}
output:
  relation: accounts
  destination: csv
  config: {path: `+dest+`}
`)

	out, err := execute(t, "run", job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "copy: success, 2 rows read, 2 rows written"), out)

	rows, err := csvfile.ReadRecords(dest + ".csv")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	out, err = execute(t, "--format", "json", "jobs", "runs")
	require.NoError(t, err)
	assert.Contains(t, out, `"jobName": "copy"`)
	assert.Contains(t, out, `"status": "success"`)
}

func TestRun_FailedJobExitsOne(t *testing.T) {
	dir := isolate(t)
	job := writeFile(t, dir, "broken.yaml", `
inputs:
  - name: a
    source: csv_file
    config: {filePath: `+filepath.Join(dir, "missing.csv")+`}
output:
  relation: a
  destination: csv
  config: {path: `+filepath.Join(dir, "out")+`}
`)
	_, err := execute(t, "run", job)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestRun_UnknownJob(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "jobs"), 0o755))
	_, err := execute(t, "run", "nope")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJobsList_Empty(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "jobs"), 0o755))
	out, err := execute(t, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs in")
}

func TestToken_CachedLifecycle(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, "tokens.json", `{"default":{"access_token":"abc","timestamp":"2024-01-01T00:00:00Z"},"sandbox":{"access_token":"tok-sandbox-9f3","timestamp":"2024-01-02T00:00:00Z"}}`)

	out, err := execute(t, "token", "get")
	require.NoError(t, err)
	assert.Equal(t, "abc\n", out)

	out, err = execute(t, "token", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "sandbox")
	assert.NotContains(t, out, "tok-sandbox-9f3")

	_, err = execute(t, "token", "delete")
	require.NoError(t, err)
	_, err = execute(t, "token", "get")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "token", "flush")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "tokens.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestToken_RefreshNeedsCredentials(t *testing.T) {
	isolate(t)
	_, err := execute(t, "token", "get", "--refresh")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
