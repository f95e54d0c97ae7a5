// Package registry loads schema and index descriptors from the service
// configuration document and resolves them by name.
//
// The document is XML:
//
//	<config>
//	  <schema><name>lilacs_Sas</name><path>schemas/lilacs_Sas.yaml</path><encoding>ISO-8859-1</encoding></schema>
//	  <index><name>lilacs</name><path>indexes/lilacs</path></index>
//	</config>
//
// A Registry is built once at startup and is read-only afterwards.
package registry

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
)

// IndexDescriptor is one configured index and its engine handle.
type IndexDescriptor struct {
	Name   string
	Path   string
	Handle engine.Index
}

// Registry holds every configured schema and index.
type Registry struct {
	schemas map[string]*schema.Schema
	indexes map[string]*IndexDescriptor
}

type configDoc struct {
	XMLName xml.Name     `xml:"config"`
	Schemas []schemaNode `xml:"schema"`
	Indexes []indexNode  `xml:"index"`
}

type schemaNode struct {
	Name     *string `xml:"name"`
	Path     *string `xml:"path"`
	Encoding *string `xml:"encoding"`
}

type indexNode struct {
	Name *string `xml:"name"`
	Path *string `xml:"path"`
}

// schemaFile is the YAML declaration a schema node points at.
type schemaFile struct {
	IndexedField string `yaml:"indexed_field"`
	Fields       []struct {
		Name  string `yaml:"name"`
		Pos   *int   `yaml:"pos"`
		Match string `yaml:"match"`
	} `yaml:"fields"`
}

// Load parses the configuration document at configPath, loads every schema
// file and opens every index through open. Relative paths resolve against
// workDir. Indexes opened before a failure are closed again.
func Load(workDir, configPath string, open engine.OpenFunc) (*Registry, error) {
	configPath = resolve(workDir, configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w: %w", configPath, domain.ErrConfig, err)
	}

	var doc configDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("[%s] - parse: %w: %w", configPath, domain.ErrConfig, err)
	}

	r := &Registry{
		schemas: make(map[string]*schema.Schema, len(doc.Schemas)),
		indexes: make(map[string]*IndexDescriptor, len(doc.Indexes)),
	}

	for _, n := range doc.Schemas {
		name, err := required(configPath, "name", n.Name)
		if err != nil {
			return nil, err
		}
		path, err := required(configPath, "path", n.Path)
		if err != nil {
			return nil, err
		}
		enc, err := required(configPath, "encoding", n.Encoding)
		if err != nil {
			return nil, err
		}
		if _, dup := r.schemas[name]; dup {
			return nil, fmt.Errorf("[%s] - duplicated schema name: %s: %w", configPath, name, domain.ErrConfig)
		}
		if _, err := htmlindex.Get(enc); err != nil {
			return nil, fmt.Errorf("[%s] - schema %s: unknown encoding %q: %w", configPath, name, enc, domain.ErrConfig)
		}
		sch, err := loadSchema(name, enc, resolve(workDir, path))
		if err != nil {
			return nil, err
		}
		r.schemas[name] = sch
	}

	for _, n := range doc.Indexes {
		name, err := required(configPath, "name", n.Name)
		if err != nil {
			r.Close()
			return nil, err
		}
		path, err := required(configPath, "path", n.Path)
		if err != nil {
			r.Close()
			return nil, err
		}
		if _, dup := r.indexes[name]; dup {
			r.Close()
			return nil, fmt.Errorf("[%s] - duplicated index name: %s: %w", configPath, name, domain.ErrConfig)
		}
		path = resolve(workDir, path)
		h, err := open(name, path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open index %s at %s: %w", name, path, err)
		}
		r.indexes[name] = &IndexDescriptor{Name: name, Path: path, Handle: h}
	}

	return r, nil
}

// required returns the trimmed text of a mandatory child node.
func required(file, node string, v *string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("[%s] - missing '%s' node: %w", file, node, domain.ErrConfig)
	}
	return strings.TrimSpace(*v), nil
}

func resolve(workDir, path string) string {
	if workDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

func loadSchema(name, encoding, path string) (*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w: %w", name, domain.ErrConfig, err)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("[%s] - parse: %w: %w", path, domain.ErrConfig, err)
	}

	fields := make([]schema.Field, 0, len(f.Fields))
	for i, fd := range f.Fields {
		pos := i
		if fd.Pos != nil {
			pos = *fd.Pos
		}
		fields = append(fields, schema.Field{Name: fd.Name, Pos: pos, Match: schema.Match(fd.Match)})
	}
	sch, err := schema.New(name, f.IndexedField, encoding, fields)
	if err != nil {
		return nil, fmt.Errorf("[%s] - %w: %w", path, domain.ErrConfig, err)
	}
	return &sch, nil
}

// Schema returns the schema registered as name.
func (r *Registry) Schema(name string) (*schema.Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	return nil, domain.NewSchemaNotFound(name)
}

// Index returns the engine handle of the index registered as name.
func (r *Registry) Index(name string) (engine.Index, error) {
	d, err := r.Descriptor(name)
	if err != nil {
		return nil, err
	}
	return d.Handle, nil
}

// Descriptor returns the descriptor of the index registered as name.
func (r *Registry) Descriptor(name string) (*IndexDescriptor, error) {
	if d, ok := r.indexes[name]; ok {
		return d, nil
	}
	return nil, domain.NewIndexNotFound(name)
}

// SchemaNames returns the registered schema names in order.
func (r *Registry) SchemaNames() []string {
	return sortedKeys(r.schemas)
}

// IndexNames returns the registered index names in order.
func (r *Registry) IndexNames() []string {
	return sortedKeys(r.indexes)
}

// Close closes every opened index handle.
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.IndexNames() {
		if err := r.indexes[name].Handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
