// Package codec persists diagram models in the native document format: a
// format marker plus frames and blocks in order. Positions are implied by
// array order and selection state is never written.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowlanes/internal/model"
	"github.com/rendis/flowlanes/internal/validation"
	"github.com/rendis/flowlanes/pkg/schema"
)

// jsonIndent is the indentation of encoded JSON documents.
const jsonIndent = "    "

// Codec encodes and decodes native documents. It is safe for concurrent use;
// the models it produces are not.
type Codec struct {
	format    Format
	validator *validation.JSONSchemaValidator
	logger    *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithFormat sets the output format of Encode. Decode always sniffs.
func WithFormat(f Format) Option {
	return func(c *Codec) { c.format = f }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithValidator shares an already compiled schema validator.
func WithValidator(v *validation.JSONSchemaValidator) Option {
	return func(c *Codec) { c.validator = v }
}

// New creates a Codec writing JSON by default.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{format: FormatJSON, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		c.validator = v
	}
	return c, nil
}

// Format returns the output format.
func (c *Codec) Format() Format { return c.format }

// As returns a copy of c that writes f. The schema validator is shared.
func (c *Codec) As(f Format) *Codec {
	cp := *c
	cp.format = f
	return &cp
}

// ToDocument snapshots m into its native document form.
func ToDocument(m *model.Model) *schema.Document {
	doc := &schema.Document{AppExport: true, Frames: make([]schema.FrameRecord, 0, m.Len())}
	for _, f := range m.Frames() {
		rec := schema.FrameRecord{Title: f.Name(), Blocks: make([]schema.BlockRecord, 0, f.Len())}
		for _, b := range f.Blocks() {
			rec.Blocks = append(rec.Blocks, schema.BlockRecord{
				Name:       b.Name(),
				Entity:     b.Entity(),
				Attributes: b.Attributes(),
			})
		}
		doc.Frames = append(doc.Frames, rec)
	}
	return doc
}

// FromDocument builds a fresh model from doc. Indexes come from array
// position and every selection flag starts cleared.
func FromDocument(doc *schema.Document) *model.Model {
	m := model.Empty()
	for _, rec := range doc.Frames {
		f := m.AddFrame(rec.Title)
		for _, b := range rec.Blocks {
			f.AddBlock(b.Name, b.Entity, b.Attributes)
		}
	}
	return m
}

// Marshal encodes m in the codec's format.
func (c *Codec) Marshal(m *model.Model) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes m to w. Write failures are reported as IO_FAILURE wrapping
// the writer's error.
func (c *Codec) Encode(w io.Writer, m *model.Model) error {
	data, err := c.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return schema.IOFailure("write document", err)
	}
	return nil
}

func (c *Codec) encode(buf *bytes.Buffer, m *model.Model) error {
	doc := ToDocument(m)
	if err := checkText(doc); err != nil {
		return err
	}
	switch c.format {
	case FormatYAML:
		enc := yaml.NewEncoder(buf)
		enc.SetIndent(2)
		if err := enc.Encode(yamlDocument(doc)); err != nil {
			return fmt.Errorf("encode yaml document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml document: %w", err)
		}
	default:
		enc := json.NewEncoder(buf)
		enc.SetIndent("", jsonIndent)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json document: %w", err)
		}
	}
	c.logger.Debug("document encoded", "format", c.format, "frames", len(doc.Frames))
	return nil
}

// checkText rejects strings that would not survive encoding unchanged.
func checkText(doc *schema.Document) error {
	for i, f := range doc.Frames {
		if !utf8.ValidString(f.Title) {
			return schema.Invariant("frame %d: title is not valid UTF-8", i).WithPath(fmt.Sprintf("frames[%d].title", i))
		}
		for j, b := range f.Blocks {
			for _, field := range []struct{ key, value string }{
				{"name", b.Name}, {"entity", b.Entity}, {"attributes", b.Attributes},
			} {
				if !utf8.ValidString(field.value) {
					return schema.Invariant("frame %d block %d: %s is not valid UTF-8", i, j, field.key).
						WithPath(fmt.Sprintf("frames[%d].blocks[%d].%s", i, j, field.key))
				}
			}
		}
	}
	return nil
}

type yamlField struct {
	key   string
	value *yaml.Node
}

// yamlDocument builds the node tree for doc directly, so every string keeps
// its exact value.
func yamlDocument(doc *schema.Document) *yaml.Node {
	frames := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, f := range doc.Frames {
		blocks := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, b := range f.Blocks {
			blocks.Content = append(blocks.Content, yamlMapping(
				yamlField{"name", yamlString(b.Name)},
				yamlField{"entity", yamlString(b.Entity)},
				yamlField{"attributes", yamlString(b.Attributes)},
			))
		}
		frames.Content = append(frames.Content, yamlMapping(
			yamlField{"title", yamlString(f.Title)},
			yamlField{"blocks", blocks},
		))
	}
	marker := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(doc.AppExport)}
	return yamlMapping(
		yamlField{schema.FormatMarker, marker},
		yamlField{"frames", frames},
	)
}

func yamlMapping(fields ...yamlField) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fields {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.key}, f.value)
	}
	return n
}

// yamlString double-quotes values made only of line breaks. As kept block
// scalars yaml.v3 reads them back one break short.
func yamlString(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if s != "" && strings.Trim(s, "\r\n") == "" {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// Decode reads a whole document from r and builds a fresh model. Read
// failures are IO_FAILURE; anything that does not match the document schema
// is MALFORMED_DOCUMENT.
func (c *Codec) Decode(r io.Reader) (*model.Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, schema.IOFailure("read document", err)
	}
	return c.Unmarshal(data)
}

// Unmarshal decodes a document held in memory.
func (c *Codec) Unmarshal(data []byte) (*model.Model, error) {
	doc, err := c.DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	m := FromDocument(doc)
	c.logger.Debug("document decoded", "frames", m.Len(), "blocks", m.BlockCount())
	return m, nil
}

// DecodeDocument validates data against the document schema and returns the
// typed document without building a model.
func (c *Codec) DecodeDocument(data []byte) (*schema.Document, error) {
	raw, format, err := DecodeRaw(data)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeMalformedDocument, "unreadable document").
			WithPath("/").WithCause(err)
	}
	return c.DecodeValue(raw, format, data)
}

// DecodeValue validates an already-decoded tree. data is the source it was
// decoded from in the given format.
func (c *Codec) DecodeValue(raw any, format Format, data []byte) (*schema.Document, error) {
	if err := c.validator.ValidateDocument(raw); err != nil {
		return nil, err
	}

	var doc schema.Document
	switch format {
	case FormatYAML:
		err := yaml.Unmarshal(data, &doc)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeMalformedDocument, "decode document").WithCause(err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeMalformedDocument, "decode document").WithCause(err)
		}
	}
	return &doc, nil
}
