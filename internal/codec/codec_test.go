package codec

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/rendis/flowlanes/internal/model"
	"github.com/rendis/flowlanes/pkg/schema"
)

func newCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func sampleModel() *model.Model {
	m := model.New()
	main := m.Frame(0)
	main.AddBlock("Sign Document", "Ops Finance Clerk Ana", "doc1")
	main.AddBlock(model.RunSubprocess, "", "Billing")
	main.AddBlock(model.FormalAssessment, "", "Condition: paid\nOn Failure: Assessment Failure 1")

	billing := m.AddFrame("Billing")
	billing.AddBlock("Notify", "", "customer <vip> & co")
	m.AddFrame("Assessment Failure 1")
	return m
}

func requireSameDocument(t *testing.T, want, got *model.Model) {
	t.Helper()
	opts := cmpopts.EquateEmpty()
	a, b := ToDocument(want), ToDocument(got)
	require.True(t, cmp.Equal(a, b, opts), "%s", cmp.Diff(a, b, opts))
}

func TestEncode_JSONLayout(t *testing.T) {
	m := model.New()
	m.Frame(0).AddBlock("Notify", "e", "a")

	var buf bytes.Buffer
	require.NoError(t, newCodec(t).Encode(&buf, m))

	want := `{
    "appExport": true,
    "frames": [
        {
            "title": "Main Process",
            "blocks": [
                {
                    "name": "Notify",
                    "entity": "e",
                    "attributes": "a"
                }
            ]
        }
    ]
}
`
	assert.Equal(t, want, buf.String())
}

func TestEncode_EmptyFrameHasEmptyBlockList(t *testing.T) {
	data, err := newCodec(t).Marshal(model.New())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"blocks": []`)
}

func TestRoundTrip_JSONAndYAML(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			c := newCodec(t, WithFormat(format))
			m := sampleModel()

			var buf bytes.Buffer
			require.NoError(t, c.Encode(&buf, m))
			assert.Equal(t, format, DetectFormat(buf.Bytes()))

			got, err := c.Decode(&buf)
			require.NoError(t, err)
			requireSameDocument(t, m, got)
		})
	}
}

func TestRoundTrip_RandomModels(t *testing.T) {
	attrs := []string{"", "doc1", "x\n", "\n", "\n\n", "\r\n", " \n", "\n ", "x\n\n\n", "a\nb", "tab\there", "Condition: ok\nOn Failure: Assessment Failure 1"}

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			c := newCodec(t, WithFormat(format))
			rng := rand.New(rand.NewSource(11))

			for i := 0; i < 25; i++ {
				m := model.New()
				for f := rng.Intn(4); f > 0; f-- {
					m.AddSubprocess()
				}
				for _, f := range m.Frames() {
					for n := rng.Intn(5); n > 0; n-- {
						b := f.AddBlock(model.Catalog[rng.Intn(len(model.Catalog))], "ent", attrs[rng.Intn(len(attrs))])
						b.SetSelected(rng.Intn(2) == 0)
					}
				}

				data, err := c.Marshal(m)
				require.NoError(t, err)
				got, err := c.Unmarshal(data)
				require.NoError(t, err)
				requireSameDocument(t, m, got)
			}
		})
	}
}

func TestRoundTrip_LineBreakOnlyStrings(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			c := newCodec(t, WithFormat(format))
			for _, v := range []string{"\n", "\n\n", "\r\n", "\n\n\n"} {
				m := model.New()
				m.Frame(0).Rename(v)
				m.Frame(0).AddBlock("Notify", v, v)

				data, err := c.Marshal(m)
				require.NoError(t, err)
				got, err := c.Unmarshal(data)
				require.NoError(t, err)
				assert.Equal(t, v, got.Frame(0).Name(), "%q", data)
				assert.Equal(t, v, got.Frame(0).Block(0).Entity())
				assert.Equal(t, v, got.Frame(0).Block(0).Attributes())
			}
		})
	}
}

func TestEncode_RejectsInvalidUTF8(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			c := newCodec(t, WithFormat(format))

			m := model.New()
			m.Frame(0).AddBlock("Notify", "", "\xff\xfe")
			_, err := c.Marshal(m)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvariantViolation))
			var dErr *schema.DiagramError
			require.ErrorAs(t, err, &dErr)
			assert.Equal(t, "frames[0].blocks[0].attributes", dErr.Path)

			m = model.New()
			m.Frame(0).Rename("Main\xc3")
			_, err = c.Marshal(m)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInvariantViolation))
		})
	}
}

func TestDecode_IndexFromPositionSelectionCleared(t *testing.T) {
	m := sampleModel()
	m.Frame(0).SetSelected(true)
	m.Frame(0).Block(1).SetSelected(true)

	data, err := newCodec(t).Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "selected")
	assert.NotContains(t, string(data), "index")

	got, err := newCodec(t).Unmarshal(data)
	require.NoError(t, err)
	for i, f := range got.Frames() {
		assert.Equal(t, i, f.Index())
		assert.False(t, f.Selected())
		for j, b := range f.Blocks() {
			assert.Equal(t, j, b.Index())
			assert.False(t, b.Selected())
			assert.Equal(t, f, got.FrameOf(b))
		}
	}
}

func TestDecode_IgnoresStoredIndexFields(t *testing.T) {
	data := `{"appExport":true,"frames":[
		{"index":7,"title":"Main","blocks":[{"index":3,"name":"Notify","entity":"","attributes":"x"}]}
	]}`
	got, err := newCodec(t).Unmarshal([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Frame(0).Index())
	assert.Equal(t, 0, got.Frame(0).Block(0).Index())
}

func TestDecode_CounterFollowsFrames(t *testing.T) {
	got, err := newCodec(t).Unmarshal([]byte(`{"appExport":true,"frames":[
		{"title":"Main","blocks":[]},{"title":"Other","blocks":[]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "Subprocess 2", got.NewSubprocessName())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
	}{
		{name: "syntax", input: `{"appExport": true,`, wantPath: "/"},
		{name: "no marker", input: `{"frames": []}`},
		{name: "frame without title", input: `{"appExport":true,"frames":[{"blocks":[]}]}`, wantPath: "frames[0]"},
		{name: "block attribute type", input: `{"appExport":true,"frames":[{"title":"M","blocks":[{"name":"a","entity":"b","attributes":3}]}]}`, wantPath: "frames[0].blocks[0].attributes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCodec(t).Unmarshal([]byte(tt.input))
			require.Error(t, err)

			var dErr *schema.DiagramError
			require.ErrorAs(t, err, &dErr)
			assert.Equal(t, schema.ErrCodeMalformedDocument, dErr.Code)
			if tt.wantPath != "" {
				assert.Equal(t, tt.wantPath, dErr.Path)
			}
		})
	}
}

type failingRW struct{ err error }

func (f failingRW) Read([]byte) (int, error)  { return 0, f.err }
func (f failingRW) Write([]byte) (int, error) { return 0, f.err }

func TestCodec_IOFailurePropagatesCause(t *testing.T) {
	boom := errors.New("disk gone")
	c := newCodec(t)

	err := c.Encode(failingRW{boom}, sampleModel())
	assert.True(t, schema.IsCode(err, schema.ErrCodeIO))
	assert.ErrorIs(t, err, boom)

	_, err = c.Decode(failingRW{boom})
	assert.True(t, schema.IsCode(err, schema.ErrCodeIO))
	assert.ErrorIs(t, err, boom)
}

func TestFiles_SaveLoad(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	files := NewFiles(fs, newCodec(t))
	m := sampleModel()

	for _, URL := range []string{"mem://localhost/diagrams/a.json", "mem://localhost/diagrams/a.yaml"} {
		require.NoError(t, files.Save(ctx, URL, m))

		raw, err := fs.DownloadWithURL(ctx, URL)
		require.NoError(t, err)
		assert.Equal(t, FormatForURL(URL), DetectFormat(raw))

		got, err := files.Load(ctx, URL)
		require.NoError(t, err)
		requireSameDocument(t, m, got)
	}
}

func TestFiles_LoadMissing(t *testing.T) {
	files := NewFiles(nil, newCodec(t))
	_, err := files.Load(context.Background(), "mem://localhost/diagrams/none.json")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestDecodeRaw_YAMLMatchesJSON(t *testing.T) {
	j, jf, err := DecodeRaw([]byte(`{"a": ["retry", {"b": "c"}]}`))
	require.NoError(t, err)
	y, yf, err := DecodeRaw([]byte("a:\n  - retry\n  - b: c\n"))
	require.NoError(t, err)

	assert.Equal(t, FormatJSON, jf)
	assert.Equal(t, FormatYAML, yf)
	assert.Equal(t, j, y)
}
