package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/route"
	"github.com/felixgeelhaar/hangar/internal/session"
	"github.com/felixgeelhaar/hangar/internal/tui"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "Manage your team's parts",
	Long: `Manage the parts produced by your team. Available to the WING, FUSELAGE,
TAIL and AVIONICS teams.

Examples:
  hangar parts list --page 2
  hangar parts create --plane-type TB2 --quantity 4
  hangar parts delete 41
  hangar parts score`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var partsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of parts",
	Args:  cobra.NoArgs,
	RunE:  runPartsList,
}

var partsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Produce parts for a plane type",
	Long: `Produce parts for a plane type. The part type defaults to the one your
team produces; other part types are rejected.`,
	Args: cobra.NoArgs,
	RunE: runPartsCreate,
}

var partsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a part that is not used in a plane",
	Args:  cobra.ExactArgs(1),
	RunE:  runPartsDelete,
}

var partsScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show used and in-stock parts per plane type",
	Args:  cobra.NoArgs,
	RunE:  runPartsScore,
}

func init() {
	partsListCmd.Flags().Int("page", 1, "page number")

	partsCreateCmd.Flags().String("part-type", "", "part type (defaults to your team's)")
	partsCreateCmd.Flags().String("plane-type", "", "plane type: TB2, TB3, AKINCI or KIZILELMA")
	partsCreateCmd.Flags().Int("quantity", 1, "number of parts to produce")
	_ = partsCreateCmd.MarkFlagRequired("plane-type")
	_ = partsCreateCmd.RegisterFlagCompletionFunc("plane-type", completePlaneTypes)

	partsDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	partsCmd.AddCommand(partsListCmd)
	partsCmd.AddCommand(partsCreateCmd)
	partsCmd.AddCommand(partsDeleteCmd)
	partsCmd.AddCommand(partsScoreCmd)

	rootCmd.AddCommand(partsCmd)
}

func completePlaneTypes(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	var names []string
	for _, p := range inventory.PlaneTypes() {
		names = append(names, string(p))
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// openBoard restores the session for a data command and checks that the
// user's team works on the given board
func openBoard(cmd *cobra.Command, want inventory.View) (*App, session.State, error) {
	a, err := newApp(cmd, appOptions{Start: route.Landing})
	if err != nil {
		return nil, session.State{}, ux.FormatError(err, "")
	}

	s, err := a.requireSession(cmd.Context())
	if err != nil {
		a.Close()
		return nil, s, err
	}

	team := s.User.Team()
	if got := inventory.ViewFor(team); got != want {
		a.Close()
		return nil, s, forbiddenBoard(team, want)
	}
	return a, s, nil
}

func forbiddenBoard(team inventory.Team, want inventory.View) error {
	if team == "" {
		return errors.New(errors.ErrCodeForbidden, "your account is not assigned to a team")
	}
	if want == inventory.ViewPlanes {
		return errors.New(errors.ErrCodeForbidden, fmt.Sprintf("the %s team produces parts; planes are assembled by the ASSEMBLY team", team)).
			WithSuggestion("Use 'hangar parts' instead")
	}
	return errors.New(errors.ErrCodeForbidden, fmt.Sprintf("the %s team assembles planes and does not manage parts", team)).
		WithSuggestion("Use 'hangar planes' instead")
}

func runPartsList(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	if page < 1 {
		return errors.NewInvalidInputError("page", "must be at least 1")
	}

	a, _, err := openBoard(cmd, inventory.ViewParts)
	if err != nil {
		return err
	}
	defer a.Close()

	var data *inventory.Page[inventory.Part]
	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		var err error
		data, err = a.Client.ListParts(ctx, page)
		return err
	})
	if err != nil {
		return ux.FormatError(err, "listing parts")
	}
	return a.print(ux.NewPartsView(page, data))
}

func runPartsCreate(cmd *cobra.Command, args []string) error {
	a, s, err := openBoard(cmd, inventory.ViewParts)
	if err != nil {
		return err
	}
	defer a.Close()

	team := s.User.Team()
	req := inventory.CreatePart{}
	req.Quantity, _ = cmd.Flags().GetInt("quantity")

	partType, _ := cmd.Flags().GetString("part-type")
	if partType == "" {
		req.PartType, _ = inventory.PartTypeFor(team)
	} else if req.PartType, err = inventory.ParsePartType(partType); err != nil {
		return err
	}

	planeType, _ := cmd.Flags().GetString("plane-type")
	if req.PlaneType, err = inventory.ParsePlaneType(planeType); err != nil {
		return err
	}

	if err := req.Validate(team); err != nil {
		return err
	}

	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		return a.Client.CreatePart(ctx, req)
	})
	if err != nil {
		return ux.FormatError(err, "creating parts")
	}

	a.Logger.Info("parts created", "part_type", string(req.PartType), "plane_type", string(req.PlaneType), "quantity", req.Quantity)
	a.announce(notify.Success("Success", "Part created successfully."))
	return nil
}

func runPartsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 {
		return errors.NewInvalidInputError("id", fmt.Sprintf("%q is not a part id", args[0]))
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		if !tui.ShouldPrompt() {
			return errors.NewInvalidInputError("yes", "pass --yes to delete without a terminal")
		}
		confirmed, err := tui.PromptForConfirmation(fmt.Sprintf("Delete part #%d?", id), false)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
			return nil
		}
	}

	a, _, err := openBoard(cmd, inventory.ViewParts)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		return a.Client.DeletePart(ctx, id)
	})
	if err != nil {
		return ux.FormatError(err, fmt.Sprintf("deleting part %d", id))
	}

	a.Logger.Info("part deleted", "id", id)
	a.announce(notify.Success("Success", "Part deleted successfully."))
	return nil
}

func runPartsScore(cmd *cobra.Command, args []string) error {
	a, _, err := openBoard(cmd, inventory.ViewParts)
	if err != nil {
		return err
	}
	defer a.Close()

	var score *inventory.Score
	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		var err error
		score, err = a.Client.PartScore(ctx)
		return err
	})
	if err != nil {
		return ux.FormatError(err, "loading score")
	}
	return a.print(ux.ScoreView{Score: *score})
}
