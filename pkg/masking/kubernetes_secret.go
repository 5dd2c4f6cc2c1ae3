package masking

import (
	"encoding/json"
	"strings"
)

// KubernetesSecretMasker blanks the data section of Kubernetes Secret
// payloads while leaving ConfigMaps and other resources alone. Regex cannot
// make that distinction, so this masker parses the JSON.
type KubernetesSecretMasker struct{}

// Name implements Masker.
func (KubernetesSecretMasker) Name() string { return "kubernetes_secret" }

// AppliesTo implements Masker.
func (KubernetesSecretMasker) AppliesTo(data string) bool {
	return strings.Contains(data, `"kind"`) && strings.Contains(data, `Secret`)
}

// Mask implements Masker.
func (KubernetesSecretMasker) Mask(data string) string {
	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return data
	}

	changed := false
	if maskSecretDoc(doc) {
		changed = true
	}
	// Lists carry the secrets under items.
	if items, ok := doc["items"].([]any); ok {
		for _, item := range items {
			if m, ok := item.(map[string]any); ok && maskSecretDoc(m) {
				changed = true
			}
		}
	}
	if !changed {
		return data
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return data
	}
	return string(out)
}

func maskSecretDoc(doc map[string]any) bool {
	if kind, _ := doc["kind"].(string); kind != "Secret" {
		return false
	}
	changed := false
	for _, section := range []string{"data", "stringData"} {
		if data, ok := doc[section].(map[string]any); ok {
			for key := range data {
				data[key] = MaskedValue
			}
			changed = true
		}
	}
	return changed
}
