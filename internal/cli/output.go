package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

// WriteOutput writes v as indented JSON, or as one JSON object per line
// when --jsonl is set and v is a slice.
func WriteOutput(out io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(out, v)
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeJSONL(out io.Writer, v any) error {
	value := reflect.ValueOf(v)
	if value.Kind() != reflect.Slice {
		return writeJSONLine(out, v)
	}
	for i := 0; i < value.Len(); i++ {
		if err := writeJSONLine(out, value.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONLine(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func wantsStructured() bool {
	return IsJSONOutput() || IsJSONLOutput()
}
