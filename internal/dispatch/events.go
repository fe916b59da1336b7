// Package dispatch decodes trigger events and routes them to the stage
// handlers. It maps each stage outcome onto the return value the functions
// runtime uses to decide whether to redeliver.
package dispatch

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
	"github.com/Lllllllleong/idpflow/internal/services"
)

// GCSEvent is the payload of a google.cloud.storage.object.v1.finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// FirestoreEvent is the JSON payload of a
// google.cloud.firestore.document.v1.written event. The trigger must be
// created with a JSON event data content type.
type FirestoreEvent struct {
	OldValue   *FirestoreDocument `json:"oldValue,omitempty"`
	Value      *FirestoreDocument `json:"value,omitempty"`
	UpdateMask *struct {
		FieldPaths []string `json:"fieldPaths"`
	} `json:"updateMask,omitempty"`
}

// FirestoreDocument is one image of a document in a Firestore event.
type FirestoreDocument struct {
	// Name is the full resource name, ending in the document ID.
	Name   string                    `json:"name"`
	Fields map[string]FirestoreValue `json:"fields"`
}

// FirestoreValue is a typed Firestore value. Only string values are read.
type FirestoreValue struct {
	StringValue *string `json:"stringValue,omitempty"`
}

func (d *FirestoreDocument) stringField(name string) string {
	if d == nil {
		return ""
	}
	v, ok := d.Fields[name]
	if !ok || v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

func (d *FirestoreDocument) id() string {
	if d == nil || d.Name == "" {
		return ""
	}
	return path.Base(d.Name)
}

// DecodeObjectEvent reads a storage finalize event.
func DecodeObjectEvent(e cloudevents.Event) (GCSEvent, error) {
	var gcsEvent GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		return GCSEvent{}, fmt.Errorf("%w: json.Unmarshal: %w", apperr.ErrFatalParse, err)
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		return GCSEvent{}, fmt.Errorf("%w: storage event without bucket or object name", apperr.ErrFatalParse)
	}
	return gcsEvent, nil
}

// DecodeRecordChange reads a Firestore document-written event and reduces it
// to the statuses before and after the write.
func DecodeRecordChange(e cloudevents.Event) (services.RecordChange, error) {
	if ct := e.DataContentType(); strings.Contains(ct, "protobuf") {
		return services.RecordChange{}, fmt.Errorf("%w: unsupported event data content type %q", apperr.ErrFatalParse, ct)
	}

	var fsEvent FirestoreEvent
	if err := json.Unmarshal(e.Data(), &fsEvent); err != nil {
		return services.RecordChange{}, fmt.Errorf("%w: json.Unmarshal: %w", apperr.ErrFatalParse, err)
	}

	documentID := fsEvent.Value.id()
	if documentID == "" {
		documentID = fsEvent.OldValue.id()
	}
	if documentID == "" {
		// The subject carries the path when the payload omits it.
		documentID = path.Base(e.Subject())
	}
	if documentID == "" || documentID == "." || documentID == "/" {
		return services.RecordChange{}, fmt.Errorf("%w: firestore event without a document name", apperr.ErrFatalParse)
	}

	return services.RecordChange{
		DocumentID: documentID,
		OldStatus:  models.Status(fsEvent.OldValue.stringField("status")),
		NewStatus:  models.Status(fsEvent.Value.stringField("status")),
	}, nil
}
