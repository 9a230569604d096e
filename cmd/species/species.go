package species

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palayguard/palayguard-go/internal/catalog"
	"github.com/palayguard/palayguard-go/internal/conf"
)

var overridePath string

// Command creates the command for browsing the pest species catalog.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "species [label]",
		Short: "List known pest species",
		Long:  "Print the pest species catalog, or the full advisory entry for a single species.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := openCatalog()
			if err != nil {
				return err
			}
			defer cat.Close()

			if len(args) == 0 {
				listSpecies(cat)
				return nil
			}
			return showSpecies(cat, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&overridePath, "catalog", "", "Path to a species override YAML file")

	return cmd
}

func openCatalog() (*catalog.Catalog, error) {
	if overridePath != "" {
		return catalog.NewWithOverride(overridePath)
	}
	return catalog.New()
}

// listSpecies prints a one-line summary per catalog entry, most dangerous
// first.
func listSpecies(cat *catalog.Catalog) {
	entries := cat.All()
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := catalog.RankDangerLevel(entries[i].DangerLevel), catalog.RankDangerLevel(entries[j].DangerLevel)
		if ri != rj {
			return ri > rj
		}
		return entries[i].Label < entries[j].Label
	})

	fmt.Printf("%-20s %-28s %s\n", "LABEL", "SCIENTIFIC NAME", "DANGER")
	for _, sp := range entries {
		fmt.Printf("%-20s %-28s %s\n", sp.Label, sp.ScientificName, sp.DangerLevel)
	}
	fmt.Printf("\n%d species in catalog\n", len(entries))
}

func showSpecies(cat *catalog.Catalog, label string) error {
	sp := cat.Lookup(label)
	if sp == nil {
		return fmt.Errorf("no catalog entry for %q", label)
	}

	fmt.Println(sp)
	fmt.Printf("\nDescription: %s\n", sp.Description)
	if sp.Symptoms != "" {
		fmt.Printf("Symptoms:    %s\n", sp.Symptoms)
	}
	if steps := catalog.TreatmentSteps(sp); len(steps) > 0 {
		fmt.Println("\nTreatment:")
		for i, step := range steps {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}
	return nil
}
