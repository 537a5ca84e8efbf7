package dataobject

import (
	"reflect"

	"dario.cat/mergo"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// setPointers makes mergo replace a pointer field whenever the higher layer
// sets it, including pointers to zero values such as header: false.
type setPointers struct{}

func (setPointers) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ.Kind() != reflect.Ptr {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}

// MergeSettings resolves layered settings. Layers are applied in order on
// top of pipeline.DefaultSettings, so later layers win field by field.
func MergeSettings(layers ...pipeline.SettingsOverride) (pipeline.Settings, error) {
	merged := pipeline.DefaultSettings().Override()
	for _, layer := range layers {
		if err := mergo.Merge(&merged, layer, mergo.WithOverride, mergo.WithTransformers(setPointers{})); err != nil {
			return pipeline.Settings{}, errors.Wrap(err, errors.ErrorTypeInternal, "failed to merge object settings")
		}
	}
	return merged.Settings(), nil
}
