package hue

import (
	"encoding/json"
)

// bridgeError extracts the first error from a bridge response shaped as
// [{"error":{...}}]. Object-shaped responses yield nil.
func bridgeError(raw any) error {
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	var results []apiResult
	if err := remarshal(arr, &results); err != nil {
		return err
	}
	for _, r := range results {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}

func remarshal(in, out any) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}
