package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/ccsim/sim/router"
)

var (
	convertFrom      string
	convertNumTypes  int
	convertNumGroups int
	convertIn        string
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a routing table between its four forms",
	Long: "Read a routing table in one form (type-to-group or group-to-type ordered lists, " +
		"incidence matrix, rank matrix) and print every form as YAML. Output is written to stdout for piping.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if convertIn != "" && convertIn != "-" {
			f, err := os.Open(convertIn)
			if err != nil {
				return fmt.Errorf("opening routing table: %w", err)
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading routing table: %w", err)
		}
		return convertTable(convertFrom, convertNumTypes, convertNumGroups, data, cmd.OutOrStdout())
	},
}

// convertTable parses data as the form named by from, checks it against the
// dimensions and writes all four forms to w.
func convertTable(from string, numTypes, numGroups int, data []byte, w io.Writer) error {
	var t router.RoutingTable
	var err error
	switch from {
	case "type-to-group":
		err = yaml.Unmarshal(data, &t.TypeToGroup)
	case "group-to-type":
		err = yaml.Unmarshal(data, &t.GroupToType)
	case "incidence":
		err = yaml.Unmarshal(data, &t.Incidence)
	case "ranks":
		err = yaml.Unmarshal(data, &t.Ranks)
	default:
		return fmt.Errorf("unknown table form %q; valid: type-to-group, group-to-type, incidence, ranks", from)
	}
	if err != nil {
		return fmt.Errorf("parsing %s table: %w", from, err)
	}

	n, err := t.Normalize(numTypes, numGroups)
	if err != nil {
		return err
	}
	out := router.RoutingTable{
		TypeToGroup: n.TypeToGroup,
		GroupToType: n.GroupToType,
		Incidence:   n.Incidence,
		Ranks:       n.RanksTG,
		RanksGT:     n.RanksGT,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding routing table: %w", err)
	}
	return enc.Close()
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "type-to-group", "Input form: type-to-group, group-to-type, incidence, ranks")
	convertCmd.Flags().IntVar(&convertNumTypes, "types", 0, "Number of contact types")
	convertCmd.Flags().IntVar(&convertNumGroups, "groups", 0, "Number of agent groups")
	convertCmd.Flags().StringVar(&convertIn, "in", "", "Input YAML file (default stdin)")
	_ = convertCmd.MarkFlagRequired("types")
	_ = convertCmd.MarkFlagRequired("groups")
}
