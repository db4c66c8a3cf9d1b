package host

// Label is a type/value pair attached to an incident.
type Label struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Incident is the subset of the current incident scripts read.
type Incident struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Labels []Label `json:"labels"`
}

// Label returns the value of the first label with the given type.
func (i *Incident) Label(labelType string) (string, bool) {
	if i == nil {
		return "", false
	}
	for _, l := range i.Labels {
		if l.Type == labelType {
			return l.Value, true
		}
	}
	return "", false
}

// IncidentSource supplies the incident a script runs against.
type IncidentSource interface {
	Incident() (*Incident, error)
}

// StaticIncident is an IncidentSource over a fixed incident.
type StaticIncident struct {
	Current *Incident
}

// Incident returns the fixed incident.
func (s StaticIncident) Incident() (*Incident, error) {
	return s.Current, nil
}
