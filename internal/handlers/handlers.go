// Package handlers exposes the core over HTTP. Dependencies are
// injected explicitly; handlers never reach for globals.
package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/ClaudeNdayambaje/payesmart1/internal/checkout"
	"github.com/ClaudeNdayambaje/payesmart1/internal/connectivity"
	"github.com/ClaudeNdayambaje/payesmart1/internal/ledger"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
	"github.com/ClaudeNdayambaje/payesmart1/internal/store"
)

// API bundles everything the HTTP layer needs.
type API struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Checkout *checkout.Orchestrator
	Monitor  *connectivity.Monitor
	Settings *settings.File
	Log      *logrus.Logger
}
