package inventory

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
)

// Reserved item keys. The underscore-prefixed ones are added by the runner and
// the cache layer rather than by the upstream APIs.
const (
	KeyID              = "id"
	KeyName            = "name"
	KeyFolderPath      = "folderPath"
	KeyModifiedDate    = "modifiedDate"
	KeySourceAccountID = "_sourceBuMid"
	KeyFromParent      = "_fromParentBU"
)

// Item is one extracted object. Well-known attributes are typed; everything
// else the upstream API returned stays in Fields. On the wire an Item is a
// single flat JSON object.
type Item struct {
	ID                string
	Name              string
	FolderPath        string
	ModifiedDate      string
	SourceAccountID   string
	FromParentAccount bool
	Fields            map[string]any
}

// NewItem builds an Item from a raw API object, lifting the reserved keys.
func NewItem(raw map[string]any) Item {
	var it Item
	it.Fields = make(map[string]any, len(raw))
	for k, v := range raw {
		switch k {
		case KeyID:
			it.ID = stringify(v)
		case KeyName:
			it.Name = stringify(v)
		case KeyFolderPath:
			it.FolderPath = stringify(v)
		case KeyModifiedDate:
			it.ModifiedDate = stringify(v)
		case KeySourceAccountID:
			it.SourceAccountID = stringify(v)
		case KeyFromParent:
			b, _ := v.(bool)
			it.FromParentAccount = b
		default:
			it.Fields[k] = v
		}
	}
	return it
}

// Get returns a top-level attribute by key.
func (it Item) Get(key string) (any, bool) {
	switch key {
	case KeyID:
		return it.ID, it.ID != ""
	case KeyName:
		return it.Name, it.Name != ""
	case KeyFolderPath:
		return it.FolderPath, it.FolderPath != ""
	case KeyModifiedDate:
		return it.ModifiedDate, it.ModifiedDate != ""
	case KeySourceAccountID:
		return it.SourceAccountID, it.SourceAccountID != ""
	case KeyFromParent:
		return it.FromParentAccount, it.FromParentAccount
	}
	v, ok := it.Fields[key]
	return v, ok
}

// String returns a top-level attribute rendered as a string, or "".
func (it Item) String(key string) string {
	v, ok := it.Get(key)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Map returns the flat representation of the item.
func (it Item) Map() map[string]any {
	out := make(map[string]any, len(it.Fields)+6)
	maps.Copy(out, it.Fields)
	if it.ID != "" {
		out[KeyID] = it.ID
	}
	if it.Name != "" {
		out[KeyName] = it.Name
	}
	if it.FolderPath != "" {
		out[KeyFolderPath] = it.FolderPath
	}
	if it.ModifiedDate != "" {
		out[KeyModifiedDate] = it.ModifiedDate
	}
	if it.SourceAccountID != "" {
		out[KeySourceAccountID] = it.SourceAccountID
	}
	if it.FromParentAccount {
		out[KeyFromParent] = true
	}
	return out
}

// Clone returns a copy whose Fields map can be modified independently.
func (it Item) Clone() Item {
	out := it
	out.Fields = maps.Clone(it.Fields)
	return out
}

func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Map())
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode item: %w", err)
	}
	*it = NewItem(raw)
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Stringify renders a raw JSON value the way item identifiers are compared.
func Stringify(v any) string {
	return stringify(v)
}
