package cvapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// UploadFile is one file in a multipart upload.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// UploadFileFromPath reads the file at path when the upload is built.
func UploadFileFromPath(path string) UploadFile {
	return UploadFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// UploadOutcome pairs the per-file counts with the cause of a whole-request
// failure, if there was one.
type UploadOutcome struct {
	UploadResult
	// Failure is set when the server never processed the batch (network
	// error, rejected token, 5xx). Every file is then counted as an error.
	Failure error
}

type uploadWire struct {
	BatchID      string          `json:"batch_id"`
	TotalFiles   int             `json:"total_files"`
	SuccessCount *int            `json:"success_count"`
	ErrorCount   *int            `json:"error_count"`
	Processed    []ProcessedFile `json:"processed"`
	Errors       []UploadError   `json:"errors"`
}

// maxReportedErrors limits per-file error lines in the summary messages.
const maxReportedErrors = 5

// UploadFiles posts files as multipart files[]. Some files failing is a
// normal outcome reported through the counts; the error return is reserved
// for local problems (missing token, unreadable file).
func (c *Client) UploadFiles(ctx context.Context, files []UploadFile, token string) (UploadOutcome, error) {
	if len(files) == 0 {
		return UploadOutcome{}, Invalid("files", "no files selected")
	}
	if token == "" {
		return UploadOutcome{}, &AuthError{Message: "upload requires a login token"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := writePart(mw, f); err != nil {
			return UploadOutcome{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return UploadOutcome{}, fmt.Errorf("finishing multipart body: %w", err)
	}

	var out uploadWire
	_, err := c.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		path:        "/upload",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		token:       token,
		protected:   true,
	}, &out)
	if err != nil {
		c.logger.Warn("upload failed", "files", len(files), "error", err)
		return UploadOutcome{
			UploadResult: UploadResult{
				TotalFiles: len(files),
				ErrorCount: len(files),
				Messages:   []string{ErrorMessage(err)},
			},
			Failure: err,
		}, nil
	}
	if out.SuccessCount == nil || out.ErrorCount == nil {
		err := &ProtocolError{Op: "upload", Err: fmt.Errorf("missing success_count or error_count")}
		return UploadOutcome{
			UploadResult: UploadResult{
				TotalFiles: len(files),
				ErrorCount: len(files),
				Messages:   []string{ErrorMessage(err)},
			},
			Failure: err,
		}, nil
	}

	res := UploadResult{
		BatchID:      out.BatchID,
		TotalFiles:   out.TotalFiles,
		SuccessCount: *out.SuccessCount,
		ErrorCount:   *out.ErrorCount,
		Processed:    out.Processed,
		Errors:       out.Errors,
	}
	if res.TotalFiles == 0 {
		res.TotalFiles = len(files)
	}
	res.Messages = append(res.Messages, fmt.Sprintf("Uploaded: %d, Errors: %d", res.SuccessCount, res.ErrorCount))
	for i, e := range res.Errors {
		if i == maxReportedErrors {
			res.Messages = append(res.Messages, fmt.Sprintf("... and %d more", len(res.Errors)-maxReportedErrors))
			break
		}
		res.Messages = append(res.Messages, fmt.Sprintf("%s: %s", e.Filename, e.Error))
	}
	return UploadOutcome{UploadResult: res}, nil
}

func writePart(mw *multipart.Writer, f UploadFile) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	part, err := mw.CreateFormFile("files[]", f.Name)
	if err != nil {
		return fmt.Errorf("adding %s: %w", f.Name, err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return nil
}

// BatchStatus fetches the current state of an asynchronous upload batch.
func (c *Client) BatchStatus(ctx context.Context, batchID, token string) (BatchStatus, error) {
	pid, err := pathID(batchID)
	if err != nil {
		return BatchStatus{}, err
	}
	var out BatchStatus
	if _, err := c.do(ctx, request{
		op:        "batch status",
		method:    http.MethodGet,
		path:      "/upload/status/" + pid,
		token:     token,
		protected: true,
	}, &out); err != nil {
		return BatchStatus{}, err
	}
	if out.BatchID == "" {
		out.BatchID = batchID
	}
	return out, nil
}
