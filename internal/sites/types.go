package sites

import (
	"bytes"
	"encoding/json"
	"maps"
	"strconv"
)

// Site is a provider site record. ID and URL are lifted out; every field the
// provider returned is kept in Fields.
type Site struct {
	ID     string
	URL    string
	Fields map[string]any

	// AdminPassword is set by Create when the password was generated locally.
	AdminPassword string
}

// UnmarshalJSON accepts string or numeric ids.
func (s *Site) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	s.Fields = fields
	s.ID = anyString(fields["id"])
	s.URL = anyString(fields["url"])
	return nil
}

// MarshalJSON emits the provider fields plus admin_password when set.
func (s Site) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Fields)+2)
	maps.Copy(out, s.Fields)
	if _, ok := out["id"]; !ok && s.ID != "" {
		out["id"] = s.ID
	}
	if _, ok := out["url"]; !ok && s.URL != "" {
		out["url"] = s.URL
	}
	if s.AdminPassword != "" {
		out["admin_password"] = s.AdminPassword
	}
	return json.Marshal(out)
}

func anyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// Location is a deployable region.
type Location struct {
	ID   string
	Name string
}

// Numeric reports whether the id is an integer. Older catalogs used string ids
// the partner API no longer accepts.
func (l Location) Numeric() bool {
	_, err := strconv.Atoi(l.ID)
	return err == nil
}

type locationJSON struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Label string          `json:"label,omitempty"`
}

// UnmarshalJSON accepts string or numeric ids, and "label" for the name.
func (l *Location) UnmarshalJSON(b []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.ID = idString(raw.ID)
	l.Name = raw.Name
	if l.Name == "" {
		l.Name = raw.Label
	}
	return nil
}

// MarshalJSON writes numeric ids as numbers.
func (l Location) MarshalJSON() ([]byte, error) {
	var id any = l.ID
	if n, err := strconv.Atoi(l.ID); err == nil {
		id = n
	}
	return json.Marshal(struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
	}{id, l.Name})
}

// CreateSpec describes a site to create. Zero values take the service defaults.
type CreateSpec struct {
	Domain         string
	Name           string
	Location       int
	AdminUsername  string
	AdminPassword  string
	AdminEmail     string
	Multisite      bool
	InstallPlugins []string
	// QuotaMB and BandwidthMB are sent only when positive; zero means unlimited.
	QuotaMB     int64
	BandwidthMB int64
	Label       string
}

// ListFilter pages the site list. Extra is passed through as query parameters.
type ListFilter struct {
	Page    int
	PerPage int
	Extra   map[string]string
}

// Default list paging.
const (
	DefaultPage    = 1
	DefaultPerPage = 20
)
