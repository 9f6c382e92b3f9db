package model

// CRMEntityType identifies the kind of CRM object a call is linked to.
type CRMEntityType string

const (
	EntityLead    CRMEntityType = "LEAD"
	EntityDeal    CRMEntityType = "DEAL"
	EntityContact CRMEntityType = "CONTACT"
	EntityCompany CRMEntityType = "COMPANY"
)

// Valid reports whether t is a known CRM entity type.
func (t CRMEntityType) Valid() bool {
	switch t {
	case EntityLead, EntityDeal, EntityContact, EntityCompany:
		return true
	}
	return false
}

// EntityTypeFromCode maps the portal's numeric entity-type id to a
// CRMEntityType. Unknown codes return an empty type.
func EntityTypeFromCode(code int) CRMEntityType {
	switch code {
	case 1:
		return EntityLead
	case 2:
		return EntityDeal
	case 3:
		return EntityContact
	case 4:
		return EntityCompany
	}
	return ""
}

// EntityKey uniquely identifies a CRM entity within a portal.
type EntityKey struct {
	Type       CRMEntityType
	ExternalID int
}

// EntityData holds the rolled-up analysis state for an entity: at most one
// CriterionResult per criterion id, updated in place on every aggregation pass.
type EntityData struct {
	Criteria []CriterionResult `json:"criteria,omitempty"`
	Extra    map[string]any    `json:"extra,omitempty"`
}

// Criterion returns a pointer to the roll-up entry for the given criterion id,
// or nil if the entity has none yet.
func (d *EntityData) Criterion(id int) *CriterionResult {
	for i := range d.Criteria {
		if d.Criteria[i].ID == id {
			return &d.Criteria[i]
		}
	}
	return nil
}

// SetCriterion replaces the entry matching r.ID in place, or appends it if
// absent. The per-entity invariant of one entry per criterion id is maintained
// here rather than by callers.
func (d *EntityData) SetCriterion(r CriterionResult) {
	if existing := d.Criterion(r.ID); existing != nil {
		*existing = r
		return
	}
	d.Criteria = append(d.Criteria, r)
}

// Entity is one row in a portal's entities table: a CRM object that calls
// link to. ID is the synthetic internal key; (Type, ExternalID) is what the
// portal knows it by.
type Entity struct {
	ID         int           `json:"id"`
	Type       CRMEntityType `json:"crm_entity_type"`
	ExternalID int           `json:"entity_id"`
	Title      string        `json:"title,omitempty"`
	Name       string        `json:"name,omitempty"`
	LastName   string        `json:"last_name,omitempty"`
	Summary    string        `json:"summary,omitempty"`
	Data       EntityData    `json:"data"`
}

// Key returns the portal-facing identity of the entity.
func (e Entity) Key() EntityKey {
	return EntityKey{Type: e.Type, ExternalID: e.ExternalID}
}

// User is one row in a portal's users table: the agent who handled a call.
// Purely descriptive, upserted whenever referenced.
type User struct {
	ID          int    `json:"id"`
	Name        string `json:"name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Departments []int  `json:"uf_department,omitempty"`
}
