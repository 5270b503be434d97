package binread

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Punctuated is a sequence of items of one type interleaved with
// separators of another, such as `1, 2, 3`.
type Punctuated struct {
	Items      []any
	Separators []any
}

func (p *Punctuated) Len() int {
	return len(p.Items)
}

func (p *Punctuated) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"items":      ToNative(p.Items),
		"separators": ToNative(p.Separators),
	})
}

// ReadSeparated reads count items with a separator between each pair:
// item, sep, item, ..., item. A count of zero reads nothing.
func ReadSeparated(ctx context.Context, call ParseCall) (any, error) {
	return readPunctuated(ctx, call, false)
}

// ReadSeparatedTrailing reads count item/separator pairs, so the last item
// is followed by a separator as well.
func ReadSeparatedTrailing(ctx context.Context, call ParseCall) (any, error) {
	return readPunctuated(ctx, call, true)
}

func readPunctuated(ctx context.Context, call ParseCall, trailing bool) (any, error) {
	pos, err := call.Source.Pos()
	if err != nil {
		return nil, err
	}
	if call.Type.Name != "punctuated" || len(call.Type.Params) != 2 {
		return nil, CustomError(pos, fmt.Errorf("expected punctuated<T,P>, got %s", call.Type))
	}
	count, ok := call.Options.Count()
	if !ok {
		return nil, missingOption(pos, "count")
	}

	itemType, sepType := call.Type.Params[0], call.Type.Params[1]
	sepOpts := call.Options.WithoutCount()

	p := &Punctuated{
		Items:      make([]any, 0, capHint(count)),
		Separators: make([]any, 0, capHint(count)),
	}
	for i := uint64(0); i < count; i++ {
		item, err := call.ReadItem(ctx, itemType, call.Options, call.Args)
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, item)

		if !trailing && i+1 == count {
			break
		}
		sep, err := call.ReadItem(ctx, sepType, sepOpts, nil)
		if err != nil {
			return nil, err
		}
		p.Separators = append(p.Separators, sep)
	}
	return p, nil
}
