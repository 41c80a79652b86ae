package remote

import (
	"encoding/json"
	"fmt"
	"strings"
)

type uploadResponse struct {
	URLs  json.RawMessage `json:"urls"`
	Fotos []uploadedPhoto `json:"fotos"`
}

type uploadedPhoto struct {
	Name string `json:"nome"`
	URL  string `json:"url"`
}

// parseUploadResponse accepts the three shapes the upload endpoint has used:
// urls as an object keyed by logical key, urls as an array in upload order,
// and fotos as a list of {nome, url}. The first shape present wins.
func parseUploadResponse(data []byte, keys []string) (map[string]string, error) {
	var resp uploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}

	urls := make(map[string]string)

	if raw := strings.TrimSpace(string(resp.URLs)); raw != "" && raw != "null" {
		switch raw[0] {
		case '{':
			var byKey map[string]string
			if err := json.Unmarshal(resp.URLs, &byKey); err != nil {
				return nil, fmt.Errorf("decode urls object: %w", err)
			}
			for k, u := range byKey {
				if u != "" {
					urls[k] = u
				}
			}
			return urls, nil
		case '[':
			var positional []string
			if err := json.Unmarshal(resp.URLs, &positional); err != nil {
				return nil, fmt.Errorf("decode urls array: %w", err)
			}
			for i, u := range positional {
				if i < len(keys) && u != "" {
					urls[keys[i]] = u
				}
			}
			return urls, nil
		default:
			return nil, fmt.Errorf("unexpected urls value %s", raw)
		}
	}

	for _, f := range resp.Fotos {
		key := strings.TrimSuffix(f.Name, ".jpg")
		if key != "" && f.URL != "" {
			urls[key] = f.URL
		}
	}
	return urls, nil
}
