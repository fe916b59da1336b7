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
	apiHandler http.Handler
	once       sync.Once
	initErr    error
)

func init() {
	app.SetupLogging()

	// Register the HTTP function with the framework.
	// "HandleAPI" is the entry point name we'll see in GCP.
	functions.HTTP("HandleAPI", handleAPI)
}

// main is required by the Go Functions Framework.
func main() {}

// handleAPI serves POST /upload and GET /results/{documentId}.
func handleAPI(w http.ResponseWriter, r *http.Request) {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		apiHandler, initErr = app.NewAPI(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		api.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	apiHandler.ServeHTTP(w, r)
}
