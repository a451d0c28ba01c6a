package cli

import (
	"fmt"

	"dripcrm/models"

	"github.com/spf13/cobra"
)

var (
	seedName      string
	seedCreatedBy uint
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVarP(&seedName, "name", "n", "", "sequence name (defaults to the built-in name)")
	seedCmd.Flags().UintVar(&seedCreatedBy, "created-by", 0, "user id recorded as the sequence owner")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default five-step sequence",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()

		var createdBy *uint
		if seedCreatedBy != 0 {
			createdBy = &seedCreatedBy
		}
		seq, err := models.SeedDefaultSequence(rt.db, seedName, createdBy)
		if err != nil {
			return fmt.Errorf("failed to seed sequence: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created sequence %d %q with %d steps\n", seq.ID, seq.Name, len(seq.Steps))
		return nil
	},
}
