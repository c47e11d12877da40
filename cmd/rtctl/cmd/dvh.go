package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/oncura/rtdose.go/pkg/rt"
)

// NewDvhCmd creates the dvh cobra command
func NewDvhCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dvh",
		Short: "Compute dose-volume histograms for a case",
		Long:  "Links the records of a YAML case fixture, computes DVHs for every region of the active structure set and prints their statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			casePath, _ := cmd.Flags().GetString("case")
			force, _ := cmd.Flags().GetBool("force")

			if casePath == "" && len(args) > 0 {
				casePath = args[0]
			}
			if casePath == "" {
				return fmt.Errorf("case fixture path is required. Use --case flag or provide as argument")
			}
			return runDvh(casePath, force)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("case", "c", "", "YAML case fixture path")
	pf.Bool("force", false, "Recalculate DVHs even when the records provide them")

	return cmd
}

func runDvh(casePath string, force bool) error {
	fx, err := LoadCaseFixture(casePath)
	if err != nil {
		return err
	}
	structures, plans, doses, series, err := fx.BuildCase()
	if err != nil {
		return err
	}

	treatmentCase, err := rt.ComputeCase(structures, plans, doses, series, force)
	if err != nil {
		return fmt.Errorf("computing case: %w", err)
	}

	first := treatmentCase.FirstStructure()
	if first == nil {
		fmt.Println("No structure set in case")
		return nil
	}

	for _, plan := range treatmentCase.Plans() {
		fmt.Printf("Plan: %s (%s) Rx %.0f cGy\n", plan.Label, plan.SOPInstanceUID, plan.RxDoseCGy)
		for _, dose := range plan.Doses {
			fmt.Printf("  Dose: %s\n", dose.SOPInstanceUID)

			regionIDs := make([]int, 0, len(first.Regions))
			for id := range first.Regions {
				regionIDs = append(regionIDs, id)
			}
			sort.Ints(regionIDs)

			for _, id := range regionIDs {
				region := first.Regions[id]
				dvh, ok := treatmentCase.Dvh(id, dose.SOPInstanceUID)
				if !ok {
					fmt.Printf("    %-20s no DVH\n", region.Label)
					continue
				}
				fmt.Printf("    %-20s %s volume %.3f cm3, min %.1f cGy, mean %.1f cGy, max %.1f cGy\n",
					region.Label, dvh.Source,
					region.Volume(),
					dvh.MinimumDoseCGy(), dvh.MeanDoseCGy(), dvh.MaximumDoseCGy())
			}
		}
	}
	return nil
}
