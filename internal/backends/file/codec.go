package file

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"zwop/internal/types"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zstd"
)

const compressedSuffix = ".zst"

var (
	enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	dec, _ = zstd.NewReader(nil)
)

// codec turns the ordered record list into file bytes and back.
type codec struct {
	name       string
	compressed bool
	marshal    func([]types.Record) ([]byte, error)
	unmarshal  func([]byte) ([]types.Record, error)
}

// codecFor picks the codec from the file extension: .yaml/.yml use YAML, anything else
// JSON. A trailing .zst compresses the encoded bytes. Both text forms end in an explicit
// closing token so a truncated file never decodes.
func codecFor(path string) codec {
	name := strings.ToLower(filepath.Base(path))
	compressed := strings.HasSuffix(name, compressedSuffix)
	name = strings.TrimSuffix(name, compressedSuffix)

	c := codec{name: "json", compressed: compressed, marshal: marshalJSON, unmarshal: unmarshalJSON}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		c.name, c.marshal, c.unmarshal = "yaml", marshalYAML, unmarshalYAML
	}
	return c
}

func (c codec) encode(records []types.Record) ([]byte, error) {
	b, err := c.marshal(records)
	if err != nil {
		return nil, err
	}
	if c.compressed {
		b = enc.EncodeAll(b, nil)
	}
	return b, nil
}

func (c codec) decode(b []byte) ([]types.Record, error) {
	if len(b) == 0 {
		return nil, errors.New("empty store file")
	}
	if c.compressed {
		var err error
		if b, err = dec.DecodeAll(b, nil); err != nil {
			return nil, err
		}
	}
	return c.unmarshal(b)
}

func marshalJSON(records []types.Record) ([]byte, error) {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func unmarshalJSON(b []byte) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("store file is not a JSON array")
	}
	d := json.NewDecoder(bytes.NewReader(trimmed))
	d.DisallowUnknownFields()
	records := []types.Record{}
	if err := d.Decode(&records); err != nil {
		return nil, err
	}
	var extra json.RawMessage
	if err := d.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON array")
	}
	return records, nil
}

// yamlDocumentEnd closes every YAML store. A YAML list has no closing token, so without
// it a file cut between two records would still parse.
const yamlDocumentEnd = "..."

func marshalYAML(records []types.Record) ([]byte, error) {
	b, err := yaml.Marshal(records)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	return append(b, yamlDocumentEnd+"\n"...), nil
}

func unmarshalYAML(b []byte) ([]types.Record, error) {
	body := bytes.TrimRight(b, " \t\r\n")
	if !bytes.HasSuffix(body, []byte("\n"+yamlDocumentEnd)) {
		return nil, errors.New("store file has no YAML document end marker")
	}
	body = body[:len(body)-len(yamlDocumentEnd)]

	records := []types.Record{}
	if err := yaml.UnmarshalWithOptions(body, &records, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}
	return records, nil
}
