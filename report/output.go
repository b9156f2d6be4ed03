package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Uploader is the object storage a snapshot can be pushed to.
type Uploader interface {
	Key(name string) string
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	PublicURL(key string) string
}

type Options struct {
	Dir      string
	XLSX     bool
	Uploader Uploader // nil skips the upload
}

// Written lists where the snapshot ended up.
type Written struct {
	Files []string
	URLs  []string
}

// Write renders the snapshot to Dir and optionally uploads every file.
func Write(ctx context.Context, s *Snapshot, opts Options) (*Written, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Dir, err)
	}

	type artifact struct {
		name        string
		contentType string
		data        []byte
	}
	artifacts := []artifact{{FileName(s.GeneratedAt, ".md"), contentTypeMarkdown, []byte(RenderMarkdown(s))}}
	if opts.XLSX {
		var buf bytes.Buffer
		if err := WriteXLSX(s, &buf); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact{FileName(s.GeneratedAt, ".xlsx"), contentTypeXLSX, buf.Bytes()})
	}

	out := &Written{}
	for _, a := range artifacts {
		path := filepath.Join(opts.Dir, a.name)
		if err := os.WriteFile(path, a.data, 0o644); err != nil {
			return out, fmt.Errorf("write %s: %w", path, err)
		}
		out.Files = append(out.Files, path)
		slog.Info("snapshot written", "path", path, "bytes", len(a.data))

		if opts.Uploader == nil {
			continue
		}
		key := opts.Uploader.Key(a.name)
		if err := opts.Uploader.Upload(ctx, key, bytes.NewReader(a.data), a.contentType); err != nil {
			return out, fmt.Errorf("upload %s: %w", a.name, err)
		}
		url := opts.Uploader.PublicURL(key)
		out.URLs = append(out.URLs, url)
		slog.Info("snapshot uploaded", "key", key, "url", url)
	}
	return out, nil
}
