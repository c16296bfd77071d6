package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/classifier"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/gmail"
	"github.com/Veraticus/the-receipts-must-flow/internal/llm"
	"github.com/Veraticus/the-receipts-must-flow/internal/matcher"
	"github.com/Veraticus/the-receipts-must-flow/internal/objectstore"
	"github.com/Veraticus/the-receipts-must-flow/internal/ofx"
	"github.com/Veraticus/the-receipts-must-flow/internal/orchestrator"
	"github.com/Veraticus/the-receipts-must-flow/internal/parser"
	"github.com/Veraticus/the-receipts-must-flow/internal/plaid"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
)

// app holds the collaborators built from configuration for one command run.
type app struct {
	store        *storage.SQLiteStorage
	completer    *llm.Completer
	matcher      *matcher.Matcher
	transactions service.TransactionSource
	orch         *orchestrator.Orchestrator
	logger       *slog.Logger
}

type appOptions struct {
	progress  orchestrator.ProgressFunc
	withMatch bool
}

// initStorage opens and migrates the configured database.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	if dir := filepath.Dir(appCfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(appCfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	logger := slog.Default()

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, logger: logger}

	rules, err := classifier.LoadRulesFile(appCfg.Classifier.RulesFile)
	if err != nil {
		a.close()
		return nil, err
	}
	cls, err := classifier.New(rules, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	if appCfg.LLM.Provider != "" {
		a.completer, err = llm.NewCompleter(ctx, appCfg.LLM, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
	}
	pipelineCfg := parser.Config{
		Logger:          logger,
		DefaultCurrency: appCfg.Parser.DefaultCurrency,
	}
	if a.completer != nil {
		pipelineCfg.Completer = a.completer
	}
	pipeline := parser.NewPipeline(pipelineCfg)

	objects, err := objectstore.New(ctx, appCfg.Objects, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	if opts.withMatch {
		if err := a.initMatching(); err != nil {
			a.close()
			return nil, err
		}
	}

	deps := orchestrator.Deps{
		Providers:  gmailProviders(logger),
		Store:      store,
		Classifier: cls,
		Pipeline:   pipeline,
		Objects:    objects,
		Progress:   opts.progress,
		Logger:     logger,
	}
	if a.matcher != nil {
		deps.Matcher = a.matcher
		deps.Transactions = a.transactions
	}
	a.orch, err = orchestrator.New(appCfg.Sync, deps)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// initMatching builds the matcher and the configured transaction source.
func (a *app) initMatching() error {
	m, err := matcher.New(appCfg.Matcher, a.store, a.store, a.logger)
	if err != nil {
		return err
	}
	a.matcher = m

	switch appCfg.Bank.Source {
	case "plaid":
		client, err := plaid.NewClient(appCfg.Bank.Plaid, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create Plaid client: %w", err)
		}
		a.transactions = client
	case "ofx":
		src, err := ofx.NewSource(appCfg.Bank.UserID, appCfg.Bank.OFXPaths,
			ofx.NewParser(appCfg.Parser.DefaultCurrency, a.logger), a.logger)
		if err != nil {
			return err
		}
		a.transactions = src
	default:
		a.transactions = a.store
	}
	return nil
}

func (a *app) close() {
	if a.completer != nil {
		a.completer.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			common.LogError(err, "Failed to close database", nil)
		}
	}
}

// gmailProviders builds one Gmail client per account on first use.
func gmailProviders(logger *slog.Logger) orchestrator.ProviderFunc {
	var (
		mu      sync.Mutex
		clients = make(map[string]*gmail.Client)
	)
	return func(ctx context.Context, accountID string) (service.MailProvider, error) {
		mu.Lock()
		defer mu.Unlock()
		if c, ok := clients[accountID]; ok {
			return c, nil
		}
		c, err := gmail.NewClient(ctx, gmailOAuth(accountID), logger.With("account", accountID))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", orchestrator.ErrNoProvider, err)
		}
		clients[accountID] = c
		return c, nil
	}
}

func gmailOAuth(account string) gmail.OAuth2Config {
	return gmail.OAuth2Config{
		ClientID:     appCfg.Gmail.ClientID,
		ClientSecret: appCfg.Gmail.ClientSecret,
		TokenFile:    appCfg.Gmail.TokenFile(account),
		CallbackPort: appCfg.Gmail.CallbackPort,
	}
}

// accountsFrom returns the flag accounts, or the configured ones.
func accountsFrom(flagAccounts []string) ([]string, error) {
	if len(flagAccounts) > 0 {
		return flagAccounts, nil
	}
	if len(appCfg.Gmail.Accounts) == 0 {
		return nil, common.NewUserError("no Gmail account given; pass --account or set gmail.accounts", common.ErrMissingConfig)
	}
	return appCfg.Gmail.Accounts, nil
}
