package core

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Entry is implemented by every stored entry type.
type Entry interface {
	ToItem() Item
	Validate() error
}

// DecodeItem decodes a stored row into its entry type.
// Rows that cannot be decoded or fail validation yield ErrCorruptRecord.
func DecodeItem[T Entry](item Item) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
		WeaklyTypedInput: false,
		Result:           &out,
	})
	if err != nil {
		return out, fmt.Errorf("creating decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(item)); err != nil {
		return out, fmt.Errorf("%w: '%s': %v", ErrCorruptRecord, item.PK(), err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("%w: '%s': %v", ErrCorruptRecord, item.PK(), err)
	}
	return out, nil
}
