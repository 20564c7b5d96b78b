package tui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/hangar/internal/api"
	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
)

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// LoginValues holds the login form fields
type LoginValues struct {
	Email    string
	Password string
}

// LoginForm asks for email and password
func LoginForm(v *LoginValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&v.Email).
				Validate(required("email")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&v.Password).
				Validate(required("password")),
		),
	).WithShowHelp(false)
}

// SignupValues holds the sign-up form fields
type SignupValues struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Team      string
}

// Registration converts the form into a sign-up request
func (v SignupValues) Registration() api.Registration {
	return api.Registration{
		Email:     strings.TrimSpace(v.Email),
		Password:  v.Password,
		FirstName: strings.TrimSpace(v.FirstName),
		LastName:  strings.TrimSpace(v.LastName),
		TeamName:  inventory.Team(v.Team),
	}
}

func teamOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, t := range inventory.Teams() {
		opts = append(opts, huh.NewOption(string(t), string(t)))
	}
	return opts
}

// SignupForm asks for the account details and team
func SignupForm(v *SignupValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Email").Value(&v.Email).Validate(required("email")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&v.Password).Validate(required("password")),
			huh.NewInput().Title("First name").Value(&v.FirstName),
			huh.NewInput().Title("Last name").Value(&v.LastName),
			huh.NewSelect[string]().Title("Team").Options(teamOptions()...).Value(&v.Team),
		),
	).WithShowHelp(false)
}

// PartValues holds the create-part form fields
type PartValues struct {
	PartType  string
	PlaneType string
	Quantity  string
}

// NewPartValues preselects the part type the team produces
func NewPartValues(team inventory.Team) *PartValues {
	v := &PartValues{PlaneType: string(inventory.PlaneTB2), Quantity: "1"}
	if pt, ok := inventory.PartTypeFor(team); ok {
		v.PartType = string(pt)
	}
	return v
}

// Request converts the form into a create-part request
func (v PartValues) Request() (inventory.CreatePart, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.Quantity))
	if err != nil {
		return inventory.CreatePart{}, errors.NewInvalidInputError("quantity", "must be a whole number")
	}
	return inventory.CreatePart{
		PartType:  inventory.PartType(v.PartType),
		PlaneType: inventory.PlaneType(v.PlaneType),
		Quantity:  n,
	}, nil
}

func validQuantity(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	return nil
}

func planeOptions() []huh.Option[string] {
	var opts []huh.Option[string]
	for _, p := range inventory.PlaneTypes() {
		opts = append(opts, huh.NewOption(string(p), string(p)))
	}
	return opts
}

// PartForm asks for a part type, plane type and quantity
func PartForm(v *PartValues, team inventory.Team) *huh.Form {
	var parts []huh.Option[string]
	for _, p := range inventory.PartTypes() {
		parts = append(parts, huh.NewOption(p.Label(), string(p)))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Part type").
				Description(fmt.Sprintf("You are on the %s team.", team)).
				Options(parts...).
				Value(&v.PartType),
			huh.NewSelect[string]().Title("Plane type").Options(planeOptions()...).Value(&v.PlaneType),
			huh.NewInput().Title("Quantity").Value(&v.Quantity).Validate(validQuantity),
		).Title("New part"),
	).WithShowHelp(false)
}

// PlaneValues holds the create-plane form field
type PlaneValues struct {
	PlaneType string
}

func bill() string {
	var parts []string
	for _, p := range inventory.PartTypes() {
		parts = append(parts, fmt.Sprintf("%d %s", inventory.RequiredAmount(p), strings.ToLower(p.Label())))
	}
	return "Uses " + strings.Join(parts, ", ") + " from stock."
}

// PlaneForm asks for the plane type to assemble
func PlaneForm(v *PlaneValues) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Plane type").
				Description(bill()).
				Options(planeOptions()...).
				Value(&v.PlaneType),
		).Title("Assemble plane"),
	).WithShowHelp(false)
}

// DeleteForm asks to confirm deleting part id
func DeleteForm(id int, confirmed *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete part #%d?", id)).
				Description("This cannot be undone.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(confirmed),
		),
	).WithShowHelp(false)
}

// PromptLogin runs the login form on the terminal
func PromptLogin(v *LoginValues) error {
	if err := LoginForm(v).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PromptSignup runs the sign-up form on the terminal
func PromptSignup(v *SignupValues) error {
	if err := SignupForm(v).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(confirm))

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}

	return confirmed, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	// Check common CI environment variables
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
