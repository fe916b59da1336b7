package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/idpflow/internal/app"
	"github.com/Lllllllleong/idpflow/internal/dispatch"
)

var (
	dispatcher *dispatch.Dispatcher
	once       sync.Once
	initErr    error
)

func init() {
	app.SetupLogging()

	// Triggered by writes to the documents collection.
	functions.CloudEvent("ClassifyDocument", classifyDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// classifyDocument is the Cloud Function entry point. A returned error makes the
// trigger redeliver the event.
func classifyDocument(ctx context.Context, e cloudevents.Event) error {
	// Use sync.Once for robust, one-time initialization of clients.
	once.Do(func() {
		dispatcher, initErr = app.NewEventDispatcher(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	return dispatcher.ClassifyDocument(ctx, e)
}
