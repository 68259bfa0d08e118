// Package format detects record formats from a path and decodes record
// content. Detection uses the testing binding; decoders are produced by a
// factory.
package format

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vk/componentry/internal/component"
	"github.com/vk/componentry/internal/contract"
	"github.com/vk/componentry/internal/registry"
)

const (
	JSON = "json"
	YAML = "yaml"

	// FactoryID is the implementation id of the decoder factory.
	FactoryID = "format.decoder.factory"
)

var (
	DetectorInterface = component.MustInterface("FormatDetector", nil, nil,
		contract.MustMethod("Name").Returning(contract.Returns(contract.KindString)),
	)
	DecoderInterface = component.MustInterface("Decoder", nil, nil,
		contract.MustMethod("Decode", contract.String("data")).Returning(contract.Returns(contract.KindAny)),
	)
	FactoryInterface = component.MustInterface("DecoderFactory", nil, nil)

	Detector = component.MustRegister(DetectorInterface, "format.detector", component.Testing)
	Decoder  = component.MustRegister(DecoderInterface, "format.decoder", component.Factory)
	Factory  = component.MustRegister(FactoryInterface, "format.factory", component.Direct)
)

// ExtensionDetector accepts paths ending in one of its extensions, or an
// explicit "format" parameter equal to its name.
type ExtensionDetector struct {
	name       string
	extensions []string
}

func (d *ExtensionDetector) Name() string { return d.name }

func (d *ExtensionDetector) Test(params map[string]any) bool {
	if f, ok := params["format"].(string); ok {
		return f == d.name
	}
	p, _ := params["path"].(string)
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range d.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

type JSONDecoder struct{}

func (JSONDecoder) Decode(data string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return v, nil
}

type YAMLDecoder struct{}

func (YAMLDecoder) Decode(data string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	return v, nil
}

// DecoderFactory produces the decoder named by the "format" parameter. It
// produces nothing for unknown formats.
type DecoderFactory struct{}

func (DecoderFactory) Get(ctx context.Context, params map[string]any) (any, error) {
	switch params["format"] {
	case JSON:
		return JSONDecoder{}, nil
	case YAML:
		return YAMLDecoder{}, nil
	default:
		return nil, nil
	}
}

// Module registers the format contracts and implementations.
type Module struct{}

func (Module) Name() string { return "format" }

func (Module) Register(t *registry.Table) {
	t.Interface(Detector, Decoder, Factory)
	t.Implement(
		detector("format.detector.json", JSON, ".json"),
		detector("format.detector.yaml", YAML, ".yaml", ".yml"),
		component.Implementation{
			ID:        FactoryID,
			Interface: Factory,
			Type:      reflect.TypeOf(DecoderFactory{}),
			New:       func(component.Env) (any, error) { return DecoderFactory{}, nil },
		},
		component.Implementation{
			ID:         "format.decoder.json",
			Interface:  Decoder,
			Type:       reflect.TypeOf(JSONDecoder{}),
			New:        func(component.Env) (any, error) { return JSONDecoder{}, nil },
			FactoryIDs: []string{FactoryID},
		},
		component.Implementation{
			ID:         "format.decoder.yaml",
			Interface:  Decoder,
			Type:       reflect.TypeOf(YAMLDecoder{}),
			New:        func(component.Env) (any, error) { return YAMLDecoder{}, nil },
			FactoryIDs: []string{FactoryID},
		},
	)
}

func detector(id, name string, extensions ...string) component.Implementation {
	return component.Implementation{
		ID:        id,
		Interface: Detector,
		Type:      reflect.TypeOf((*ExtensionDetector)(nil)),
		New: func(component.Env) (any, error) {
			return &ExtensionDetector{name: name, extensions: extensions}, nil
		},
	}
}
