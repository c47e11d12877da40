package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oncura/rtdose.go/pkg/rt"
)

// NewIsoDoseCmd creates the isodose cobra command
func NewIsoDoseCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isodose",
		Short: "Generate isodose regions for a case",
		Long:  "Links the records of a YAML case fixture and prints the generated isodose level ladder per dose object.",
		RunE: func(cmd *cobra.Command, args []string) error {
			casePath, _ := cmd.Flags().GetString("case")

			if casePath == "" && len(args) > 0 {
				casePath = args[0]
			}
			if casePath == "" {
				return fmt.Errorf("case fixture path is required. Use --case flag or provide as argument")
			}
			return runIsoDose(casePath)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("case", "c", "", "YAML case fixture path")

	return cmd
}

func runIsoDose(casePath string) error {
	fx, err := LoadCaseFixture(casePath)
	if err != nil {
		return err
	}
	structures, plans, doses, series, err := fx.BuildCase()
	if err != nil {
		return err
	}

	treatmentCase, err := rt.ComputeCase(structures, plans, doses, series, false)
	if err != nil {
		return fmt.Errorf("computing case: %w", err)
	}

	for _, plan := range treatmentCase.Plans() {
		fmt.Printf("Plan: %s Rx %.0f cGy\n", plan.Label, plan.RxDoseCGy)
		for _, dose := range plan.Doses {
			regions := treatmentCase.IsoDoseRegions(dose.SOPInstanceUID)
			if len(regions) == 0 {
				fmt.Printf("  Dose %s: no isodose regions\n", dose.SOPInstanceUID)
				continue
			}
			fmt.Printf("  Dose %s:\n", dose.SOPInstanceUID)
			for _, region := range regions {
				label := region.Label
				if label == "" {
					label = fmt.Sprintf("%d%%", region.Level)
				}
				fmt.Printf("    %-6s %6.1f cGy, %d planes, thickness %.2f mm\n",
					label, region.AbsoluteDoseCGy, len(region.Planes), region.Thickness)
			}
		}
	}
	return nil
}
