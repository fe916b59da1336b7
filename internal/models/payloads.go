package models

// These structs define the JSON payloads of the public HTTP API and of the
// events that trigger the processing functions.

// UploadRequest is the body of POST /upload.
type UploadRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// UploadResponse is returned once the record exists and the upload URL is issued.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	UploadURL  string `json:"uploadUrl"`
}

// ResultsResponse is the projection returned by GET /results/{documentId}.
// Fields a stage has not produced yet are null.
type ResultsResponse struct {
	DocumentID      string            `json:"documentId"`
	FileName        string            `json:"fileName"`
	FileType        string            `json:"fileType"`
	Status          Status            `json:"status"`
	UploadTimestamp string            `json:"uploadTimestamp"`
	LastUpdated     string            `json:"lastUpdated"`
	OCRResults      map[string]string `json:"ocrResults"`
	ExtractedText   *string           `json:"extractedText"`
	PageCount       *int              `json:"pageCount,omitempty"`
	Classification  *string           `json:"classification"`
	Summary         *string           `json:"summary"`
	ErrorDetails    *string           `json:"errorDetails,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ReconcileResponse reports what one reconciler sweep did.
type ReconcileResponse struct {
	Scanned   int `json:"scanned"`
	Redriven  int `json:"redriven"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}
