package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/wasm"
	"github.com/tetratelabs/wasmcore/internal/wasm/binary"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	funcStyle   = cellStyle.Foreground(lipgloss.Color("#98FB98"))
)

func doInspect(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("inspect", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	_ = flags.Parse(args)

	if help {
		printInspectUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printInspectUsage(stdErr, flags)
		exit(1)
	}
	bin := readWasm(flags.Arg(0), stdErr, exit)

	m, err := binary.DecodeModule(bin, api.CoreFeaturesV2, wasm.MemoryLimitPages)
	if err == nil {
		err = m.Validate(api.CoreFeaturesV2)
	}
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		exit(1)
	}

	fmt.Fprint(stdOut, renderModule(m))
	exit(0)
}

// renderModule returns a table per declaration kind present in the module.
func renderModule(m *wasm.Module) string {
	name := "(unnamed)"
	if m.NameSection != nil && m.NameSection.ModuleName != "" {
		name = m.NameSection.ModuleName
	}
	sections := []string{titleStyle.Render("module " + name)}

	if len(m.TypeSection) > 0 {
		rows := make([][]string, len(m.TypeSection))
		for i := range m.TypeSection {
			rows[i] = []string{strconv.Itoa(i), m.TypeSection[i].String()}
		}
		sections = append(sections, renderTable("Types", []string{"index", "signature"}, rows))
	}

	if len(m.ImportSection) > 0 {
		rows := make([][]string, len(m.ImportSection))
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			desc := ""
			if imp.Type == wasm.ExternTypeFunc {
				desc = m.TypeSection[imp.DescFunc].String()
			}
			rows[i] = []string{imp.Module, imp.Name, api.ExternTypeName(imp.Type), desc}
		}
		sections = append(sections, renderTable("Imports", []string{"module", "name", "kind", "signature"}, rows))
	}

	if len(m.ExportSection) > 0 {
		rows := make([][]string, len(m.ExportSection))
		for i := range m.ExportSection {
			exp := &m.ExportSection[i]
			desc := ""
			switch exp.Type {
			case wasm.ExternTypeFunc:
				desc = m.TypeOfFunction(exp.Index).String()
			case wasm.ExternTypeGlobal:
				_, globals, _, _ := m.AllDeclarations()
				desc = wasm.ValueTypeName(globals[exp.Index].ValType)
			}
			rows[i] = []string{exp.Name, api.ExternTypeName(exp.Type), strconv.Itoa(int(exp.Index)), desc}
		}
		sections = append(sections, renderTable("Exports", []string{"name", "kind", "index", "signature"}, rows))
	}

	if mem := m.MemorySection; mem != nil {
		maxPages := "-"
		if mem.IsMaxEncoded {
			maxPages = strconv.Itoa(int(mem.Max))
		}
		rows := [][]string{{strconv.Itoa(int(mem.Min)), maxPages, wasm.PagesToUnitOfBytes(mem.Min)}}
		sections = append(sections, renderTable("Memory", []string{"min pages", "max pages", "min size"}, rows))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func renderTable(title string, headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0 && title != "Memory":
				return funcStyle
			default:
				return cellStyle
			}
		})
	return "\n" + headerStyle.Render(title) + "\n" + t.Render()
}
