package models

import "bytes"

// SelectedFile is a PDF accepted by intake and owned by one upload attempt.
type SelectedFile struct {
	Filename    string
	ContentType string
	Size        int64
	Hash        string
	PageCount   int
	Data        []byte
}

// Reader returns a fresh reader over the file content.
func (f *SelectedFile) Reader() *bytes.Reader {
	return bytes.NewReader(f.Data)
}

// ProcessResponse is the JSON body returned by the translation endpoint.
// Key has the form "<prefix>/<objectName>".
type ProcessResponse struct {
	Key string `json:"Key"`
}

// DownloadedBlob is the processed output fetched from the storage bucket.
type DownloadedBlob struct {
	ObjectName  string
	ContentType string
	Data        []byte
}

// These structs define the JSON payloads exchanged between the page and the server.

// SelectResponse is returned after a file passes intake.
type SelectResponse struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	PageCount int    `json:"pageCount,omitempty"`
	CanUpload bool   `json:"canUpload"`
}

// UploadResponse is returned once the processed file is ready to open.
type UploadResponse struct {
	UploadID string `json:"uploadId"`
	BlobURL  string `json:"blobUrl"`
	Reused   bool   `json:"reused,omitempty"`
}

// ErrorResponse carries a user-facing message.
type ErrorResponse struct {
	Error string `json:"error"`
}
