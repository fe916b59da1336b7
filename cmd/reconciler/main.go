package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/idpflow/internal/api"
	"github.com/Lllllllleong/idpflow/internal/app"
)

var (
	reconcileHandler http.Handler
	once             sync.Once
	initErr          error
)

func init() {
	app.SetupLogging()

	// Invoked by Cloud Scheduler with POST /reconcile.
	functions.HTTP("HandleReconcile", handleReconcile)
}

// main is required by the Go Functions Framework.
func main() {}

func handleReconcile(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		reconcileHandler, initErr = app.NewReconcileAPI(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		api.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	reconcileHandler.ServeHTTP(w, r)
}
