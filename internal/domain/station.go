package domain

// Station is one entry of the configured roster.
type Station struct {
	ID   string
	Name string
}

// Roster is the authoritative, ordered list of stations. Its order is the
// canonical order for every table, chart legend, and persisted document.
type Roster []Station

// IDs returns the station ids in roster order.
func (r Roster) IDs() []string {
	ids := make([]string, len(r))
	for i, s := range r {
		ids[i] = s.ID
	}
	return ids
}

// Index returns the roster position of id, or -1 when unknown.
func (r Roster) Index(id string) int {
	for i, s := range r {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is on the roster.
func (r Roster) Contains(id string) bool {
	return r.Index(id) >= 0
}

// Name returns the display name for id, falling back to the id itself.
func (r Roster) Name(id string) string {
	if i := r.Index(id); i >= 0 && r[i].Name != "" {
		return r[i].Name
	}
	return id
}
