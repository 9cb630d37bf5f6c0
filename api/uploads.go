package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mitchellh/mapstructure"
)

// UploadsService transfers files to the object storage endpoint.
type UploadsService struct {
	c *Client
}

// UploadFile is one file to transfer.
type UploadFile struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// UploadedFile is the storage service's record of a stored file.
type UploadedFile struct {
	URL  string `json:"url" mapstructure:"url"`
	Key  string `json:"key" mapstructure:"key"`
	Size int64  `json:"size" mapstructure:"size"`
	Type string `json:"type" mapstructure:"type"`
}

// Upload transfers files as one multipart request and returns the
// stored file records. Uploads are never retried automatically: a 429
// here means the storage provider is throttling us and blind retries
// compound it. The caller surfaces the hint and the user decides.
func (s *UploadsService) Upload(ctx context.Context, files []UploadFile) ([]UploadedFile, error) {
	const op = "uploads.upload"

	req := s.c.http.R().SetContext(ctx)
	for _, f := range files {
		req.SetFileReader("files", f.Name, f.Reader)
	}

	resp, err := req.Post("/uploads")
	if err != nil {
		return nil, newTransportError(op, err)
	}
	if resp.IsError() {
		return nil, newStatusError(op, resp.StatusCode(), serverMessage(resp.Body()), resp.Header())
	}
	return decodeUploadResponse(op, resp.Body())
}

// decodeUploadResponse accepts both storage response shapes: the
// current {files: [{url, key, size, type}]} and the legacy
// {urls: ["..."]}.
func decodeUploadResponse(op string, body []byte) ([]UploadedFile, error) {
	var raw struct {
		Success *bool    `json:"success"`
		Message string   `json:"message"`
		Files   []any    `json:"files"`
		URLs    []string `json:"urls"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Op: op, Kind: KindServer, Message: "malformed upload response", Err: err}
	}
	if raw.Success != nil && !*raw.Success {
		msg := raw.Message
		if msg == "" {
			msg = genericMessage
		}
		return nil, &Error{Op: op, Kind: KindServer, Message: msg}
	}

	if len(raw.Files) > 0 {
		out := make([]UploadedFile, 0, len(raw.Files))
		for _, f := range raw.Files {
			var uf UploadedFile
			if err := mapstructure.Decode(f, &uf); err != nil {
				return nil, &Error{Op: op, Kind: KindServer, Message: "malformed file record", Err: err}
			}
			out = append(out, uf)
		}
		return out, nil
	}

	out := make([]UploadedFile, 0, len(raw.URLs))
	for _, u := range raw.URLs {
		out = append(out, UploadedFile{URL: u})
	}
	return out, nil
}
