package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/docverify/internal/registry"
	"github.com/sells-group/docverify/internal/verify"
)

var schemasChecks bool

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List document schemas and verification check lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := printSchemas(os.Stdout, reg); err != nil {
			return err
		}
		if !schemasChecks {
			return nil
		}
		engine, err := loadEngine()
		if err != nil {
			return err
		}
		fmt.Println()
		return printCheckLists(os.Stdout, engine.CheckLists())
	},
}

func init() {
	schemasCmd.Flags().BoolVar(&schemasChecks, "checks", false, "also list the verification check lists")
	rootCmd.AddCommand(schemasCmd)
}

func printSchemas(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSECTIONS\tFIELDS\tCRITICAL")
	for _, dt := range reg.Types() {
		schema := reg.MustLookup(dt)
		sections := make([]string, 0, len(schema.Sections))
		var critical []string
		for _, s := range schema.Sections {
			sections = append(sections, s.Name)
			critical = append(critical, s.CriticalFields()...)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", dt, strings.Join(sections, ","), len(schema.Fields()), strings.Join(critical, ","))
	}
	return tw.Flush()
}

func printCheckLists(w io.Writer, lists []verify.CheckList) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tCHECK\tCOMPARATOR\tREFERENCE\tDEPENDENT")
	for _, cl := range lists {
		for _, c := range cl.Checks {
			right := c.Right
			if right == "" {
				right = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s.%s\t%s.%s\n", cl.Pair, c.Name, c.Comparator, cl.Reference, c.Left, cl.Dependent, right)
		}
	}
	return tw.Flush()
}
