package cli

import (
	"context"
	"os"

	"sftocsv/internal/etl"
	_ "sftocsv/internal/etl/destinations" // register destinations via init()
	"sftocsv/internal/etl/sources"
	"sftocsv/internal/salesforce"
	"sftocsv/internal/secret"
	"sftocsv/internal/service"
	"sftocsv/internal/storage"
)

// tokenStore returns the configured token cache.
func (o *RootOptions) tokenStore() *secret.TokenFile {
	return secret.NewTokenFile(o.Config.Token.StorePath)
}

// accessToken resolves a token: an explicit one from config or the
// environment, then the cache, then the client-credentials flow.
func (o *RootOptions) accessToken(ctx context.Context) (string, error) {
	sf := o.Config.Salesforce
	if sf.AccessToken != "" {
		return sf.AccessToken, nil
	}
	store := o.tokenStore()
	if !o.Config.HasClientCredentials() {
		cached, err := store.Get(o.Config.Token.Tag)
		if err != nil {
			return "", err
		}
		if len(cached) == 0 {
			return "", salesforce.ErrMissingToken
		}
		return string(cached), nil
	}
	return salesforce.CollectToken(ctx, store, o.Config.Token.Tag, salesforce.Credentials{
		BaseURL:      sf.BaseURL,
		ClientID:     sf.ClientID,
		ClientSecret: sf.ClientSecret,
	})
}

// client builds a Salesforce client and registers it with the soql source.
func (o *RootOptions) client(ctx context.Context) (*salesforce.Client, error) {
	token, err := o.accessToken(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "no access token", err)
	}
	c, err := salesforce.New(salesforce.Config{
		BaseURL:     o.Config.Salesforce.BaseURL,
		APIVersion:  o.Config.Salesforce.APIVersion,
		AccessToken: token,
		Logger:      o.Logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create Salesforce client", err)
	}
	sources.SetQueryClient(c)
	return c, nil
}

// optionalClient is client for commands that work without one. The error is
// logged rather than returned.
func (o *RootOptions) optionalClient(ctx context.Context) *salesforce.Client {
	c, err := o.client(ctx)
	if err != nil {
		o.Logger.Debug("salesforce client unavailable", "err", err)
		return nil
	}
	return c
}

// openStorage opens the run-log database under the data directory.
func (o *RootOptions) openStorage() (*storage.DB, error) {
	if err := os.MkdirAll(o.Config.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data dir", err)
	}
	db, err := storage.New(o.Config.RunLogPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	return db, nil
}

// jobService wires a JobService over db for the configured jobs directory.
func (o *RootOptions) jobService(db *storage.DB) *service.JobService {
	return service.NewJobService(service.JobServiceConfig{
		JobsDir: o.Config.JobsDir,
		Engine:  etl.NewEngine(o.Logger),
		Runs:    storage.NewRunLogStore(db),
		Logger:  o.Logger,
	})
}

// recordQuery logs a query to the history table. Failures only warn.
func (o *RootOptions) recordQuery(entry *storage.QueryLog) {
	db, err := o.openStorage()
	if err != nil {
		o.Logger.Warn("query log unavailable", "err", err)
		return
	}
	defer db.Close()
	if err := storage.NewQueryLogStore(db).Record(entry); err != nil {
		o.Logger.Warn("failed to record query", "err", err)
	}
}
