// Package travelrequest keeps the paginated, filtered list of travel requests
// and reshapes API payloads into the form the views consume.
package travelrequest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/frahmantamala/travel-requests/internal/datefmt"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"

	// StatusAll disables the status filter.
	StatusAll = "all"
)

var statusLabels = map[Status]string{
	StatusRequested: "Solicitado",
	StatusApproved:  "Aprovado",
	StatusCancelled: "Cancelado",
}

// Label returns the display name of s, or s itself when it is unknown.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s. Approved and
// cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusRequested && (next == StatusApproved || next == StatusCancelled)
}

type City struct {
	ID        *int64 `json:"id,omitempty"`
	Name      string `json:"name"`
	StateCode string `json:"state_code,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
}

// UnmarshalJSON accepts state and country either as plain strings or as
// objects carrying a name (and, for states, a code).
func (c *City) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        any             `json:"id"`
		Name      string          `json:"name"`
		StateCode *string         `json:"state_code"`
		State     json.RawMessage `json:"state"`
		Country   json.RawMessage `json:"country"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	city := City{ID: coerceID(raw.ID), Name: raw.Name}
	if raw.StateCode != nil {
		city.StateCode = *raw.StateCode
	}

	stateName, stateCode := namedValue(raw.State)
	city.State = stateName
	if city.StateCode == "" {
		city.StateCode = stateCode
	}
	city.Country, _ = namedValue(raw.Country)

	*c = city
	return nil
}

func namedValue(raw json.RawMessage) (name, code string) {
	if len(raw) == 0 {
		return "", ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, ""
	}

	var named struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &named); err == nil {
		return named.Name, named.Code
	}
	return "", ""
}

type TravelRequest struct {
	ID            int64   `json:"id"`
	CityID        *int64  `json:"city_id"`
	RequesterName string  `json:"requester_name"`
	DepartureDate string  `json:"departure_date"`
	ReturnDate    string  `json:"return_date"`
	Status        Status  `json:"status"`
	Notes         *string `json:"notes"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	LocationLabel string  `json:"location_label"`
	City          *City   `json:"city,omitempty"`
}

// payload is a travel request as the API sends it.
type payload struct {
	ID            any     `json:"id"`
	CityID        any     `json:"city_id"`
	RequesterName string  `json:"requester_name"`
	DepartureDate string  `json:"departure_date"`
	ReturnDate    string  `json:"return_date"`
	Status        Status  `json:"status"`
	Notes         *string `json:"notes"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	LocationLabel string  `json:"location_label"`
	City          *City   `json:"city"`
}

func (p payload) normalize() TravelRequest {
	tr := TravelRequest{
		CityID:        coerceID(p.CityID),
		RequesterName: p.RequesterName,
		DepartureDate: normalizeDate(p.DepartureDate),
		ReturnDate:    normalizeDate(p.ReturnDate),
		Status:        p.Status,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		City:          p.City,
	}
	if id := coerceID(p.ID); id != nil {
		tr.ID = *id
	}

	tr.LocationLabel = strings.TrimSpace(p.LocationLabel)
	if tr.LocationLabel == "" {
		tr.LocationLabel = LocationLabel(p.City)
	}
	return tr
}

// Normalize decodes one API record.
func Normalize(data []byte) (TravelRequest, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return TravelRequest{}, err
	}
	return p.normalize(), nil
}

// LocationLabel builds "City, SP, Country" from whatever parts are present.
func LocationLabel(city *City) string {
	if city == nil {
		return ""
	}

	state := city.StateCode
	if strings.TrimSpace(state) == "" {
		state = city.State
	}

	parts := make([]string, 0, 3)
	for _, part := range []string{city.Name, state, city.Country} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

// normalizeDate keeps unparseable input as received.
func normalizeDate(value string) string {
	if normalized := datefmt.ToAPIDate(value); normalized != "" {
		return normalized
	}
	return strings.TrimSpace(value)
}

// coerceID turns a JSON number or numeric string into an id; anything else is nil.
func coerceID(v any) *int64 {
	var n int64
	switch value := v.(type) {
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
			return nil
		}
		n = int64(value)
	case json.Number:
		parsed, err := value.Int64()
		if err != nil {
			return nil
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

// Filters narrows the list. Date bounds may be in any format datefmt accepts.
type Filters struct {
	Status        string `json:"status"`
	Location      string `json:"location"`
	DepartureFrom string `json:"departure_from"`
	DepartureTo   string `json:"departure_to"`
	ReturnFrom    string `json:"return_from"`
	ReturnTo      string `json:"return_to"`
}

func DefaultFilters() Filters {
	return Filters{Status: StatusAll}
}

// Matches applies the filters to an already normalized item.
func (f Filters) Matches(tr TravelRequest) bool {
	if f.Status != "" && f.Status != StatusAll && string(tr.Status) != f.Status {
		return false
	}
	if location := strings.ToLower(strings.TrimSpace(f.Location)); location != "" {
		if !strings.Contains(strings.ToLower(tr.LocationLabel), location) {
			return false
		}
	}
	return withinBounds(tr.DepartureDate, f.DepartureFrom, f.DepartureTo) &&
		withinBounds(tr.ReturnDate, f.ReturnFrom, f.ReturnTo)
}

func withinBounds(date, from, to string) bool {
	if from = datefmt.ToAPIDate(from); from != "" && date < from {
		return false
	}
	if to = datefmt.ToAPIDate(to); to != "" && date > to {
		return false
	}
	return true
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

func DefaultPagination() Pagination {
	return Pagination{CurrentPage: 1, PerPage: 15, Total: 0, LastPage: 1}
}

// CreateInput is the body of a new travel request.
type CreateInput struct {
	RequesterName string  `json:"requester_name"`
	CityID        *int64  `json:"city_id"`
	DepartureDate string  `json:"departure_date"`
	ReturnDate    string  `json:"return_date"`
	Notes         *string `json:"notes"`
}

func (in CreateInput) normalize() CreateInput {
	out := in
	out.DepartureDate = normalizeDate(in.DepartureDate)
	out.ReturnDate = normalizeDate(in.ReturnDate)
	if in.Notes == nil || strings.TrimSpace(*in.Notes) == "" {
		out.Notes = nil
	}
	return out
}
