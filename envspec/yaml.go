package envspec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlPredicate struct {
	Kind   PredicateKind `yaml:"kind"`
	Value  string        `yaml:"value"`
	Values []string      `yaml:"values"`
}

type yamlTrigger struct {
	When    yamlPredicate `yaml:"when"`
	Require []string      `yaml:"require"`
}

type yamlVariable struct {
	Default     *string       `yaml:"default"`
	Description string        `yaml:"description"`
	Conditional bool          `yaml:"conditional"`
	Triggers    []yamlTrigger `yaml:"triggers"`
}

func (p yamlPredicate) predicate() (Predicate, error) {
	switch p.Kind {
	case KindEquals, KindNotEquals, KindContains:
		return Predicate{Kind: p.Kind, Value: p.Value}, nil
	case KindNonEmpty:
		return NonEmpty(), nil
	case KindOneOf:
		if len(p.Values) == 0 {
			return Predicate{}, errors.New("one-of predicate without values")
		}
		return OneOf(p.Values...), nil
	case KindIntAbove:
		n, err := strconv.Atoi(strings.TrimSpace(p.Value))
		if err != nil {
			return Predicate{}, fmt.Errorf("int-above predicate: `%s` is not an integer", p.Value)
		}
		return IntAbove(n), nil
	case KindCustom:
		return Predicate{}, errors.New("custom predicates cannot be declared in a table file")
	}
	return Predicate{}, fmt.Errorf("unknown predicate kind `%s`", p.Kind)
}

// LoadTables reads tables declared in a YAML document of the form
//
//	tables:
//	  site:
//	    MY_VAR:
//	      default: "false"
//	      description: enable something
//	      triggers:
//	        - when: {kind: equals, value: "true"}
//	          require: [OTHER_VAR]
//
// Tables and variables keep their order in the document.
func LoadTables(r io.Reader) ([]Table, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("LoadTables: Decode error: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("LoadTables: line %d: expected a mapping", root.Line)
	}

	var tablesNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "tables" {
			tablesNode = root.Content[i+1]
		}
	}
	if tablesNode == nil {
		return nil, nil
	}
	if tablesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("LoadTables: line %d: `tables` must be a mapping", tablesNode.Line)
	}

	var res []Table
	for i := 0; i+1 < len(tablesNode.Content); i += 2 {
		name := tablesNode.Content[i].Value
		body := tablesNode.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("LoadTables: line %d: table `%s` must be a mapping", body.Line, name)
		}
		var specs []VariableSpec
		for j := 0; j+1 < len(body.Content); j += 2 {
			varName := body.Content[j].Value
			var raw yamlVariable
			if err := body.Content[j+1].Decode(&raw); err != nil {
				return nil, fmt.Errorf("LoadTables: table `%s`, variable %s: %w", name, varName, err)
			}
			spec := VariableSpec{
				Name:        varName,
				Default:     raw.Default,
				Description: raw.Description,
				Conditional: raw.Conditional,
			}
			for _, trg := range raw.Triggers {
				pred, err := trg.When.predicate()
				if err != nil {
					return nil, fmt.Errorf("LoadTables: table `%s`, variable %s: %w", name, varName, err)
				}
				spec.Triggers = append(spec.Triggers, When(pred, trg.Require...))
			}
			specs = append(specs, spec)
		}
		res = append(res, NewTable(name, specs...))
	}
	return res, nil
}

// LoadTablesFile reads tables from the YAML file at path.
func LoadTablesFile(path string) ([]Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTablesFile `%s`: Open error: %w", path, err)
	}
	defer f.Close()
	return LoadTables(f)
}
