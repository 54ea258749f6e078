package domain

import (
	"encoding/json"
	"fmt"
)

// RefKind tags how an entity reference arrived on the wire.
type RefKind int

const (
	// RefUnset means the field was null or absent.
	RefUnset RefKind = iota
	// RefReference means the server sent an id (with or without a name).
	RefReference
	// RefInline means the server sent a bare display name.
	RefInline
)

// EntityRef normalizes fields like branch and division that the backend has
// variously serialized as null, a bare name string, a numeric id, or an
// {id, name} object. Decoding happens once here so nothing downstream
// branches on the wire shape.
type EntityRef struct {
	Kind RefKind
	ID   int64
	Name string
}

// Reference builds an id-backed reference.
func Reference(id int64, name string) EntityRef {
	return EntityRef{Kind: RefReference, ID: id, Name: name}
}

// Inline builds a name-only reference.
func Inline(name string) EntityRef {
	if name == "" {
		return EntityRef{}
	}
	return EntityRef{Kind: RefInline, Name: name}
}

// IsSet reports whether the reference carries any value.
func (r EntityRef) IsSet() bool {
	return r.Kind != RefUnset
}

// String returns a display label for the reference.
func (r EntityRef) String() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Kind == RefReference:
		return fmt.Sprintf("#%d", r.ID)
	default:
		return ""
	}
}

// UnmarshalJSON accepts null, a string name, a numeric id, or an {id, name}
// object.
func (r *EntityRef) UnmarshalJSON(data []byte) error {
	*r = EntityRef{}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		*r = Inline(v)
		return nil
	case float64:
		*r = Reference(int64(v), "")
		return nil
	case map[string]any:
		if id, ok := v["id"].(float64); ok {
			r.Kind = RefReference
			r.ID = int64(id)
		}
		if name, ok := v["name"].(string); ok {
			r.Name = name
			if r.Kind == RefUnset {
				r.Kind = RefInline
			}
		}
		return nil
	default:
		return fmt.Errorf("entity reference: unsupported JSON shape %T", raw)
	}
}

// MarshalJSON round-trips the normalized forms.
func (r EntityRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefReference:
		return json.Marshal(struct {
			ID   int64  `json:"id"`
			Name string `json:"name,omitempty"`
		}{ID: r.ID, Name: r.Name})
	case RefInline:
		return json.Marshal(r.Name)
	default:
		return []byte("null"), nil
	}
}
