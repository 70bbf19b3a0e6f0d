package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IsBootstrapKey reports whether key is one of BootstrapKeys, the keys that
// pick the instance store backend and are read at startup before the store
// is opened.
func IsBootstrapKey(key string) bool {
	return BootstrapKeys[key]
}

// SetYamlKey sets a dotted key ("db.driver", "restore.max-outer-iterations")
// in the confd.yaml file at path, creating the file and any intermediate
// mappings as needed. The file is parsed into a yaml node tree and the
// addressed scalar patched in place, so comments, key order, and everything
// else in the document survive the rewrite. viper's own WriteConfig
// round-trips through a flat map and loses both, which is why confd doesn't
// use it here.
func SetYamlKey(path, key, value string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}

	if err := patchScalar(doc.Content[0], strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("config: set %s in %s: %w", key, path, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// patchScalar walks the mapping node m along the dotted-key path, creating
// missing mappings, and overwrites the final value node with a plain
// scalar. The encoder re-resolves the scalar's tag from its text, so "10"
// lands as an int and "true" as a bool, the same way viper would read a
// hand-edited file.
func patchScalar(m *yaml.Node, path []string, value string) error {
	if m.Kind != yaml.MappingNode {
		return fmt.Errorf("%q addresses a %s node, want a mapping", path[0], kindName(m.Kind))
	}

	name := path[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Value != name {
			continue
		}
		if len(path) == 1 {
			setScalar(v, value)
			return nil
		}
		return patchScalar(v, path[1:], value)
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
	if len(path) == 1 {
		valNode := &yaml.Node{}
		setScalar(valNode, value)
		m.Content = append(m.Content, keyNode, valNode)
		return nil
	}
	sub := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, keyNode, sub)
	return patchScalar(sub, path[1:], value)
}

func setScalar(n *yaml.Node, value string) {
	*n = yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
