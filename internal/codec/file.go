package codec

import (
	"bytes"
	"context"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/rendis/flowlanes/internal/model"
	"github.com/rendis/flowlanes/pkg/schema"
)

// Files loads and saves native documents by URL (file://, mem:// or any
// scheme the afs service has registered). The output format follows the
// URL extension.
type Files struct {
	fs    afs.Service
	codec *Codec
}

// NewFiles creates a Files over fs. A nil fs defaults to afs.New().
func NewFiles(fs afs.Service, c *Codec) *Files {
	if fs == nil {
		fs = afs.New()
	}
	return &Files{fs: fs, codec: c}
}

// FS returns the underlying storage service.
func (f *Files) FS() afs.Service { return f.fs }

// Save encodes m and uploads it to URL.
func (f *Files) Save(ctx context.Context, URL string, m *model.Model) error {
	data, err := f.codec.As(FormatForURL(URL)).Marshal(m)
	if err != nil {
		return err
	}
	if err := f.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return schema.IOFailure("save "+URL, err)
	}
	return nil
}

// Load downloads URL and decodes it.
func (f *Files) Load(ctx context.Context, URL string) (*model.Model, error) {
	data, err := ReadURL(ctx, f.fs, URL)
	if err != nil {
		return nil, err
	}
	return f.codec.Unmarshal(data)
}

// ReadURL downloads the whole content at URL. A missing location is
// NOT_FOUND; any other failure is IO_FAILURE.
func ReadURL(ctx context.Context, fs afs.Service, URL string) ([]byte, error) {
	exists, err := fs.Exists(ctx, URL)
	if err != nil {
		return nil, schema.IOFailure("stat "+URL, err)
	}
	if !exists {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no document at %s", URL)
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, schema.IOFailure("read "+URL, err)
	}
	return data, nil
}
