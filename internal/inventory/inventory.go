// Package inventory holds the aircraft parts domain the dashboard works
// with: teams, part and plane types, request validation and pagination.
// Validation mirrors the backend's rules so bad input fails locally.
package inventory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/felixgeelhaar/hangar/internal/errors"
)

// Team is a manufacturing team
type Team string

const (
	TeamWing     Team = "WING"
	TeamFuselage Team = "FUSELAGE"
	TeamTail     Team = "TAIL"
	TeamAvionics Team = "AVIONICS"
	TeamAssembly Team = "ASSEMBLY"
)

// Teams lists every team
func Teams() []Team {
	return []Team{TeamWing, TeamFuselage, TeamTail, TeamAvionics, TeamAssembly}
}

// ParseTeam validates a team identifier, case-insensitively
func ParseTeam(s string) (Team, error) {
	t := Team(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Teams() {
		if t == known {
			return t, nil
		}
	}
	return "", errors.NewInvalidInputError("team", fmt.Sprintf("%q is not one of WING, FUSELAGE, TAIL, AVIONICS, ASSEMBLY", s))
}

// PartType is a kind of aircraft part
type PartType string

const (
	PartWing     PartType = "WING"
	PartFuselage PartType = "FUSELAGE"
	PartTail     PartType = "TAIL"
	PartAvionics PartType = "AVIONICS"
)

// PartTypes lists every part type
func PartTypes() []PartType {
	return []PartType{PartWing, PartFuselage, PartTail, PartAvionics}
}

var partLabels = map[PartType]string{
	PartWing:     "Wing",
	PartFuselage: "Fuselage",
	PartTail:     "Tail",
	PartAvionics: "Avionics",
}

// Label returns the display name of a part type
func (p PartType) Label() string {
	if l, ok := partLabels[p]; ok {
		return l
	}
	return string(p)
}

// ParsePartType validates a part type identifier
func ParsePartType(s string) (PartType, error) {
	p := PartType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := partLabels[p]; ok {
		return p, nil
	}
	return "", errors.NewInvalidInputError("part type", fmt.Sprintf("%q is not one of WING, FUSELAGE, TAIL, AVIONICS", s))
}

// PartTypeFor returns the part type a team produces. Assembly produces none.
func PartTypeFor(t Team) (PartType, bool) {
	switch t {
	case TeamWing, TeamFuselage, TeamTail, TeamAvionics:
		return PartType(t), true
	default:
		return "", false
	}
}

// PlaneType is an aircraft model
type PlaneType string

const (
	PlaneTB2       PlaneType = "TB2"
	PlaneTB3       PlaneType = "TB3"
	PlaneAkinci    PlaneType = "AKINCI"
	PlaneKizilelma PlaneType = "KIZILELMA"
)

// PlaneTypes lists every plane type
func PlaneTypes() []PlaneType {
	return []PlaneType{PlaneTB2, PlaneTB3, PlaneAkinci, PlaneKizilelma}
}

// ParsePlaneType validates a plane type identifier
func ParsePlaneType(s string) (PlaneType, error) {
	p := PlaneType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PlaneTypes() {
		if p == known {
			return p, nil
		}
	}
	return "", errors.NewInvalidInputError("plane type", fmt.Sprintf("%q is not one of TB2, TB3, AKINCI, KIZILELMA", s))
}

// View is the dashboard a team works in
type View int

const (
	// ViewNone is shown to users without a team
	ViewNone View = iota
	// ViewParts lists, creates and deletes the team's parts
	ViewParts
	// ViewPlanes lists and assembles planes
	ViewPlanes
)

// ViewFor picks the dashboard for a team
func ViewFor(t Team) View {
	switch {
	case t == TeamAssembly:
		return ViewPlanes
	case t != "":
		return ViewParts
	default:
		return ViewNone
	}
}

// Maker is the user who produced a part
type Maker struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Part is one produced part as listed by the backend. PartType carries the
// backend's display label, not the identifier.
type Part struct {
	ID           int       `json:"id"`
	PartType     string    `json:"part_type"`
	PlaneType    PlaneType `json:"plane_type"`
	Team         string    `json:"team"`
	User         *Maker    `json:"user,omitempty"`
	UsedInPlane  bool      `json:"used_in_plane"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Usages       []Usage   `json:"part_usages,omitempty"`
}

// Usage names the plane a part was assembled into
type Usage struct {
	PlaneAssembly int `json:"plane_assembly"`
}

// Plane is one assembled plane
type Plane struct {
	ID        int       `json:"id"`
	PlaneType PlaneType `json:"plane_type"`
	PartsUsed []Part    `json:"parts_used"`
	User      int       `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// PageSize is the backend's fixed page size
const PageSize = 10

// Page is one page of a paginated listing
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// HasNext reports whether a later page exists
func (p Page[T]) HasNext() bool { return p.Next != nil && *p.Next != "" }

// HasPrevious reports whether an earlier page exists
func (p Page[T]) HasPrevious() bool { return p.Previous != nil && *p.Previous != "" }

// TotalPages returns the number of pages for the listing, at least 1
func (p Page[T]) TotalPages() int {
	return TotalPages(p.Count)
}

// TotalPages returns ceil(count / PageSize), at least 1
func TotalPages(count int) int {
	if count <= 0 {
		return 1
	}
	return int(math.Ceil(float64(count) / PageSize))
}

// ClampPage keeps page within [1, total]
func ClampPage(page, total int) int {
	if page < 1 {
		return 1
	}
	if total >= 1 && page > total {
		return total
	}
	return page
}

// PlaneScore counts a team's parts for one plane type
type PlaneScore struct {
	Used   int `json:"used"`
	Unused int `json:"unused"`
}

// Score is the part usage summary for the caller's team
type Score struct {
	Team     string                   `json:"team"`
	PartType string                   `json:"part_type"`
	Scores   map[PlaneType]PlaneScore `json:"scores"`
}

// CreatePart asks the backend to produce Quantity parts
type CreatePart struct {
	PartType  PartType  `json:"part_type"`
	PlaneType PlaneType `json:"plane_type"`
	Quantity  int       `json:"quantity"`
}

// Validate checks the request against the caller's team
func (c CreatePart) Validate(team Team) error {
	if _, err := ParsePartType(string(c.PartType)); err != nil {
		return err
	}
	if _, err := ParsePlaneType(string(c.PlaneType)); err != nil {
		return err
	}
	if c.Quantity < 1 {
		return errors.NewInvalidInputError("quantity", "must be at least 1")
	}
	allowed, ok := PartTypeFor(team)
	if !ok {
		return errors.NewInvalidInputError("team", fmt.Sprintf("team %s does not produce parts", team))
	}
	if allowed != c.PartType {
		return errors.NewInvalidInputError("part type", fmt.Sprintf("team %s can only produce %s parts", team, allowed))
	}
	return nil
}

// PartUse is one line of a plane assembly
type PartUse struct {
	PartType  PartType  `json:"part_type"`
	PlaneType PlaneType `json:"plane_type"`
	Amount    int       `json:"amount"`
}

// CreatePlane asks the backend to assemble a plane from stock parts
type CreatePlane struct {
	PlaneType PlaneType `json:"plane_type"`
	PartsUsed []PartUse `json:"parts_used"`
}

// RequiredAmount is how many parts of a type one plane needs
func RequiredAmount(p PartType) int {
	if p == PartWing {
		return 2
	}
	return 1
}

// NewCreatePlane builds an assembly request with the standard bill of materials
func NewCreatePlane(plane PlaneType) CreatePlane {
	req := CreatePlane{PlaneType: plane}
	for _, p := range PartTypes() {
		req.PartsUsed = append(req.PartsUsed, PartUse{PartType: p, PlaneType: plane, Amount: RequiredAmount(p)})
	}
	return req
}

// Validate checks that every part type is present in the required amount
// and matches the plane being assembled.
func (c CreatePlane) Validate() error {
	if _, err := ParsePlaneType(string(c.PlaneType)); err != nil {
		return err
	}

	seen := make(map[PartType]int, len(c.PartsUsed))
	for _, u := range c.PartsUsed {
		if _, err := ParsePartType(string(u.PartType)); err != nil {
			return err
		}
		if u.PlaneType != c.PlaneType {
			return errors.NewInvalidInputError("parts_used", fmt.Sprintf("%s %s part cannot be fitted to a %s", u.PlaneType, u.PartType, c.PlaneType))
		}
		seen[u.PartType] += u.Amount
	}

	var missing []string
	for _, p := range PartTypes() {
		if seen[p] < RequiredAmount(p) {
			missing = append(missing, fmt.Sprintf("%s x%d", p, RequiredAmount(p)-seen[p]))
		}
	}
	if len(missing) > 0 {
		return errors.NewInvalidInputError("parts_used", "missing "+strings.Join(missing, ", "))
	}
	return nil
}
