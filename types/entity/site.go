package entity

import (
	"io"
	"time"
)

// Site is the manifest of one deployed static site.
// The site name is globally unique and never changes after creation.
type Site struct {
	SiteName  string       `json:"site_name"`
	Owner     string       `json:"owner"`
	Files     []FileRecord `json:"files"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FileRecord binds one uploaded filename to the blob that holds its content.
// It only lives inside its parent Site manifest.
type FileRecord struct {
	Filename    string    `json:"filename"`
	BlobID      string    `json:"blob_id"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UploadFile is one file of an incoming deployment batch,
// as handed over by the multipart transport layer.
type UploadFile struct {
	Name        string
	ContentType string
	Payload     io.Reader
}

type DeployResult struct {
	SiteName string `json:"site_name"`
	URL      string `json:"url"`
}

type SiteDetails struct {
	SiteName string   `json:"site_name"`
	URL      string   `json:"url"`
	Files    []string `json:"files"`
}

// RetireResult reports a finished site retirement. Leaked holds blob ids
// that could not be reclaimed; the manifest itself is already gone.
type RetireResult struct {
	SiteName string   `json:"site_name"`
	Leaked   []string `json:"leaked_blob_ids,omitempty"`
}

type Avatar struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	ContentSize int64  `json:"content_size"`
}
