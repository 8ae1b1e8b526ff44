package store

import (
	"encoding/json"
	"strings"

	"misl/internal/model"
)

func decodeList(b []byte) (*model.List, error) {
	var list model.List
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, err
		}
	}

	// Older files keep both sides under a "main" key.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err == nil {
		mainRaw := raw["main"]
		if isNullOrEmpty(raw["active"]) && isNullOrEmpty(raw["inactive"]) && !isNullOrEmpty(mainRaw) {
			var legacy struct {
				Active   []model.Entry `json:"active"`
				Inactive []model.Entry `json:"inactive"`
			}
			if err := json.Unmarshal(mainRaw, &legacy); err == nil {
				list.Active = legacy.Active
				list.Inactive = legacy.Inactive
			}
		}
	}

	list.Normalize()
	return &list, nil
}

func isNullOrEmpty(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	s := strings.TrimSpace(string(b))
	return s == "" || s == "null"
}
