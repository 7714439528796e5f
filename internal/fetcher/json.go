package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// Entry is one key/value pair emitted by DecodeJSONMap.
type Entry[T any] struct {
	Key   string
	Value T
}

// DecodeJSONMap decodes a feed document of the form
// {"meta": {...}, "data": {"<key>": <value>, ...}} streaming, sending each
// data entry to a channel without materializing the full map. Keys outside
// "data" are skipped. Both channels are closed when processing completes; a
// malformed document surfaces exactly one error.
func DecodeJSONMap[T any](ctx context.Context, r io.Reader) (<-chan Entry[T], <-chan error) {
	outCh := make(chan Entry[T], 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		if err := expectDelim(decoder, '{'); err != nil {
			errCh <- eris.Wrap(err, "json: feed opening")
			return
		}

		for decoder.More() {
			tok, err := decoder.Token()
			if err != nil {
				errCh <- eris.Wrap(err, "json: read feed key")
				return
			}
			key, ok := tok.(string)
			if !ok {
				errCh <- eris.Errorf("json: expected feed key, got %v", tok)
				return
			}

			if key != "data" {
				// meta and any future siblings are not interesting
				var skip json.RawMessage
				if err := decoder.Decode(&skip); err != nil {
					errCh <- eris.Wrapf(err, "json: skip %q", key)
					return
				}
				continue
			}

			if err := decodeDataObject(ctx, decoder, outCh); err != nil {
				errCh <- err
				return
			}
		}

		// Consume closing brace
		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: feed closing")
		}
	}()

	return outCh, errCh
}

func decodeDataObject[T any](ctx context.Context, decoder *json.Decoder, outCh chan<- Entry[T]) error {
	if err := expectDelim(decoder, '{'); err != nil {
		return eris.Wrap(err, "json: data opening")
	}

	for decoder.More() {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}

		tok, err := decoder.Token()
		if err != nil {
			return eris.Wrap(err, "json: read data key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.Errorf("json: expected data key, got %v", tok)
		}

		var value T
		if err := decoder.Decode(&value); err != nil {
			return eris.Wrapf(err, "json: decode entry %q", key)
		}

		select {
		case outCh <- Entry[T]{Key: key, Value: value}:
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "json: context cancelled")
		}
	}

	if err := expectDelim(decoder, '}'); err != nil {
		return eris.Wrap(err, "json: data closing")
	}
	return nil
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != want {
		return eris.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}
