package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/source"
)

// Placement of a person in the built hierarchy.
const (
	placedNode     = "node"
	placedRoot     = "root"
	placedSpouse   = "spouse"
	placedUnplaced = "unplaced"
)

// placement is one row of the check report.
type placement struct {
	Person family.Person
	Status string
	Notes  []string
}

// placements reports, in collection order, where each person of snap ended
// up in h.
func placements(snap *source.Snapshot, h *family.Hierarchy) []placement {
	status := make(map[int64]string)
	notes := make(map[int64][]string)

	h.WalkAll(func(n *family.Node) bool {
		parent := n.Parent()
		switch {
		case n.Cycle:
			notes[n.ID] = append(notes[n.ID], "repeated under "+parent.Name)
		case parent == nil:
			status[n.ID] = placedRoot
			if h.Fallback {
				notes[n.ID] = append(notes[n.ID], "chosen by birth date")
			}
		default:
			status[n.ID] = placedNode
		}
		if sp := n.Spouse; sp != nil && !n.Cycle {
			if _, ok := status[sp.ID]; !ok {
				status[sp.ID] = placedSpouse
			}
			notes[sp.ID] = append(notes[sp.ID], "beside "+n.Name)
		}
		return true
	})

	out := make([]placement, len(snap.Persons))
	for i, p := range snap.Persons {
		st, ok := status[p.ID]
		if !ok {
			st = placedUnplaced
		}
		out[i] = placement{Person: p, Status: st, Notes: notes[p.ID]}
	}
	return out
}

type checkOpts struct {
	strict bool
	source sourceFlags
}

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var opts checkOpts

	cmd := &cobra.Command{
		Use:   "check [tree-id]",
		Short: "List persons with their placement and report data problems",
		Long: `Check builds the hierarchy of a tree and prints every person with where
they were drawn: as a root, as a node, beside a partner, or not at all. Data
problems the builder works around, such as parent-child cycles or
relationships naming unknown persons, are listed below the table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.source.apply(&c.cfg)
			return c.runCheck(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit with an error when problems are found")
	opts.source.register(cmd)

	return cmd
}

func (c *CLI) runCheck(ctx context.Context, args []string, opts checkOpts) error {
	runner, closeRunner, err := c.newRunner(ctx, true)
	if err != nil {
		return err
	}
	defer closeRunner()

	treeID, err := c.resolveTreeID(ctx, args, runner.Source)
	if err != nil {
		return err
	}
	snap, err := runner.Load(ctx, treeID)
	if err != nil {
		return err
	}
	h, diag := runner.Build(ctx, snap, c.baseOptions(treeID))

	fmt.Fprintln(stdout, StyleTitle.Render(snap.Tree.DisplayName()))
	if len(snap.Persons) == 0 {
		printInfo("No family members yet")
	} else {
		fmt.Fprintln(stdout, placementTable(placements(snap, h)))
	}
	printKeyValue("Persons", strconv.Itoa(len(snap.Persons)))
	printKeyValue("Roots", strconv.Itoa(len(h.Roots)))
	printKeyValue("Nodes", strconv.Itoa(h.Size()))

	warnings := diag.Warnings()
	if len(warnings) == 0 {
		printSuccess("No data problems found")
		return nil
	}
	printWarnings(warnings)
	if opts.strict {
		return errors.New(errors.ErrCodeInvalidInput, "%d data problem(s) in tree %d", len(warnings), treeID)
	}
	printNextStep("Fail on problems", "stemma check --strict")
	return nil
}

func placementTable(rows []placement) string {
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = []string{
			strconv.FormatInt(r.Person.ID, 10),
			r.Person.FullName(),
			r.Person.Lifespan(),
			r.Status,
			strings.Join(r.Notes, "; "),
		}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Name", "Life", "Placed", "Notes").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case rows[row].Status == placedUnplaced:
				return base.Foreground(colorYellow)
			case col == 0 || col == 4:
				return base.Foreground(colorDim)
			case col == 3 && rows[row].Status == placedRoot:
				return base.Foreground(colorCyan)
			}
			return base.Foreground(colorWhite)
		}).
		Render()
}
