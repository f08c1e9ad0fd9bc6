package codec

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hengadev/serializers/primitive"
	"gopkg.in/yaml.v3"
)

// YAMLRenderer writes block style YAML in key order. The
// "default_flow_style" option switches collections to flow style.
type YAMLRenderer struct{}

func (YAMLRenderer) Render(w io.Writer, data any, opts Options) error {
	node, err := yamlNode(data, opts.flag("default_flow_style"))
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	if opts.Indent > 0 {
		enc.SetIndent(opts.Indent)
	}
	if err := enc.Encode(node); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	return enc.Close()
}

func yamlNode(v any, flow bool) (*yaml.Node, error) {
	var style yaml.Style
	if flow {
		style = yaml.FlowStyle
	}
	switch val := v.(type) {
	case *primitive.Map:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: style}
		for _, key := range val.Keys() {
			item, _ := val.Get(key)
			child, err := yamlNode(item, flow)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, child)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: style}
		for _, item := range val {
			child, err := yamlNode(item, flow)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(val)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(val, 10)}, nil
	case float64:
		node := &yaml.Node{}
		if err := node.Encode(val); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		return node, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: val}, nil
	case time.Time:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: primitive.FormatTime(val)}, nil
	}
	return nil, fmt.Errorf("yaml: %T is not a primitive value", v)
}

// YAMLParser reads the first YAML document, keeping mapping key order.
// Untagged timestamps stay text.
type YAMLParser struct{}

func (YAMLParser) Parse(r io.Reader) (any, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return fromYAMLNode(&doc)
}

func fromYAMLNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return fromYAMLNode(node.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(node.Alias)
	case yaml.MappingNode:
		m := primitive.NewMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			value, err := fromYAMLNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(node.Content[i].Value, value)
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := fromYAMLNode(child)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("yaml: line %d: %w", node.Line, err)
		}
		n, err := primitive.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("yaml: line %d: %w", node.Line, err)
		}
		return n, nil
	}
	return nil, fmt.Errorf("yaml: unexpected node kind %v", node.Kind)
}
