package cvapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// GetCV fetches the full structured record, including raw_text.
func (c *Client) GetCV(ctx context.Context, id string) (CVRecord, error) {
	pid, err := pathID(id)
	if err != nil {
		return CVRecord{}, err
	}
	var rec CVRecord
	if _, err := c.do(ctx, request{
		op:     "view cv",
		method: http.MethodGet,
		path:   "/api/view/" + pid,
	}, &rec); err != nil {
		return CVRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// UpdateCV replaces the stored record. The token is required.
func (c *Client) UpdateCV(ctx context.Context, id string, rec CVRecord, token string) (Message, error) {
	pid, err := pathID(id)
	if err != nil {
		return Message{}, err
	}
	body, err := jsonBody(rec)
	if err != nil {
		return Message{}, err
	}
	msg, _, err := c.doMessage(ctx, request{
		op:          "update cv",
		method:      http.MethodPut,
		path:        "/api/view/" + pid,
		body:        body,
		contentType: "application/json",
		token:       token,
		protected:   true,
	}, "CV updated successfully")
	return msg, err
}

// DeleteCV removes a CV and its index entries. The token is required.
func (c *Client) DeleteCV(ctx context.Context, id, token string) (Message, error) {
	pid, err := pathID(id)
	if err != nil {
		return Message{}, err
	}
	msg, _, err := c.doMessage(ctx, request{
		op:        "delete cv",
		method:    http.MethodDelete,
		path:      "/api/cv/" + pid,
		token:     token,
		protected: true,
	}, "CV deleted successfully")
	return msg, err
}

// DownloadPDF returns the original uploaded file.
func (c *Client) DownloadPDF(ctx context.Context, id string) ([]byte, error) {
	pid, err := pathID(id)
	if err != nil {
		return nil, err
	}
	resp, err := c.open(ctx, request{
		op:     "download pdf",
		method: http.MethodGet,
		path:   "/api/download_pdf/" + pid,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "download pdf", Err: err}
	}
	return data, nil
}

// DownloadPDFToPath streams the original file to path. The file only appears
// at path once the download completed.
func (c *Client) DownloadPDFToPath(ctx context.Context, id, path string) (int64, error) {
	pid, err := pathID(id)
	if err != nil {
		return 0, err
	}
	resp, err := c.open(ctx, request{
		op:     "download pdf",
		method: http.MethodGet,
		path:   "/api/download_pdf/" + pid,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cvdesk-download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, &TransportError{Op: "download pdf", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("moving download into place: %w", err)
	}
	return n, nil
}
