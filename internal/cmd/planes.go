package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
	"github.com/felixgeelhaar/hangar/internal/notify"
	"github.com/felixgeelhaar/hangar/internal/ux"
)

var planesCmd = &cobra.Command{
	Use:   "planes",
	Short: "Assemble planes from parts in stock",
	Long: `List and assemble planes. Available to the ASSEMBLY team.

A plane uses 2 wings, 1 fuselage, 1 tail and 1 avionics of its plane type.

Examples:
  hangar planes list
  hangar planes create --plane-type AKINCI`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var planesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of assembled planes",
	Args:  cobra.NoArgs,
	RunE:  runPlanesList,
}

var planesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Assemble a plane",
	Args:  cobra.NoArgs,
	RunE:  runPlanesCreate,
}

func init() {
	planesListCmd.Flags().Int("page", 1, "page number")

	planesCreateCmd.Flags().String("plane-type", "", "plane type: TB2, TB3, AKINCI or KIZILELMA")
	_ = planesCreateCmd.MarkFlagRequired("plane-type")
	_ = planesCreateCmd.RegisterFlagCompletionFunc("plane-type", completePlaneTypes)

	planesCmd.AddCommand(planesListCmd)
	planesCmd.AddCommand(planesCreateCmd)

	rootCmd.AddCommand(planesCmd)
}

func runPlanesList(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	if page < 1 {
		return errors.NewInvalidInputError("page", "must be at least 1")
	}

	a, _, err := openBoard(cmd, inventory.ViewPlanes)
	if err != nil {
		return err
	}
	defer a.Close()

	var data *inventory.Page[inventory.Plane]
	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		var err error
		data, err = a.Client.ListPlanes(ctx, page)
		return err
	})
	if err != nil {
		return ux.FormatError(err, "listing planes")
	}
	return a.print(ux.NewPlanesView(page, data))
}

func runPlanesCreate(cmd *cobra.Command, args []string) error {
	planeType, _ := cmd.Flags().GetString("plane-type")
	pt, err := inventory.ParsePlaneType(planeType)
	if err != nil {
		return err
	}
	req := inventory.NewCreatePlane(pt)
	if err := req.Validate(); err != nil {
		return err
	}

	a, _, err := openBoard(cmd, inventory.ViewPlanes)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.authorized(cmd.Context(), func(ctx context.Context) error {
		return a.Client.CreatePlane(ctx, req)
	})
	if err != nil {
		return ux.FormatError(err, "assembling plane")
	}

	a.Logger.Info("plane assembled", "plane_type", string(pt))
	a.announce(notify.Success("Success", "Plane assembled successfully."))
	return nil
}
