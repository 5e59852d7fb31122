package flow

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Fprint writes a text dump of g to w.
//
// Format:
//
//	graph name:
//	  BB01 [w=100] <- (entry)
//	    s1 = ...
//	    cond -> BB03
//	  BB02 [w=0 rare] <- BB01
//	    return
func Fprint(w io.Writer, g *Graph) {
	fmt.Fprintf(w, "graph %s:\n", g.Name)
	for b := g.first; b != nil; b = b.next {
		fprintBlock(w, g, b)
	}
	for i, r := range g.EH {
		fmt.Fprintf(w, "  EH#%d %s try %s..%s handler %s..%s", i+1, r.Kind, r.TryBeg, r.TryLast, r.HndBeg, r.HndLast)
		if r.FilterBeg != nil {
			fmt.Fprintf(w, " filter %s", r.FilterBeg)
		}
		fmt.Fprintln(w)
	}
}

func fprintBlock(w io.Writer, g *Graph, b *Block) {
	var attrs []string
	attrs = append(attrs, "w="+strconv.FormatFloat(float64(b.Weight), 'g', -1, 64))
	if f := b.Flags &^ FlagImported; f != 0 {
		attrs = append(attrs, f.String())
	}
	if b.TryIndex != 0 {
		attrs = append(attrs, fmt.Sprintf("try=%d", b.TryIndex))
	}
	if b.HndIndex != 0 {
		attrs = append(attrs, fmt.Sprintf("hnd=%d", b.HndIndex))
	}

	preds := predList(b)
	if b == g.first {
		preds = "(entry) " + preds
	}
	fmt.Fprintf(w, "  %s [%s] <- %s\n", b, strings.Join(attrs, " "), strings.TrimSpace(preds))

	if b.Stmts != nil {
		for _, l := range b.Stmts.Lines() {
			fmt.Fprintf(w, "    %s\n", l)
		}
	}
	fmt.Fprintf(w, "    %s\n", formatTerminator(b))
}

func predList(b *Block) string {
	preds := make([]string, len(b.Preds))
	for i, e := range b.Preds {
		preds[i] = e.String()
	}
	return strings.Join(preds, " ")
}

// formatTerminator formats a block terminator.
func formatTerminator(b *Block) string {
	switch b.Kind {
	case JumpFallthrough:
		return "fallthrough"
	case JumpSwitch:
		arms := make([]string, len(b.Switch))
		for i, s := range b.Switch {
			arms[i] = s.String()
		}
		return "switch -> " + strings.Join(arms, " ")
	case JumpFinallyReturn:
		var conts []string
		for _, s := range b.Succs() {
			conts = append(conts, s.String())
		}
		return "finallyret -> " + strings.Join(conts, " ")
	default:
		if b.Kind.HasTarget() {
			return fmt.Sprintf("%s -> %s", b.Kind, b.Target)
		}
		return b.Kind.String()
	}
}

// Sprint returns the text dump of g as a string.
func Sprint(g *Graph) string {
	var sb strings.Builder
	Fprint(&sb, g)
	return sb.String()
}

// Print writes the text dump of g to stdout.
func Print(g *Graph) {
	Fprint(os.Stdout, g)
}

// FprintTable writes one table row per block: layout, terminator,
// predecessors, weight, flags and EH indices.
func FprintTable(w io.Writer, g *Graph) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Block", "Jump", "Preds", "Weight", "Flags", "Try", "Hnd"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for b := g.first; b != nil; b = b.next {
		table.Append([]string{
			b.String(),
			formatTerminator(b),
			predList(b),
			strconv.FormatFloat(float64(b.Weight), 'g', -1, 64),
			b.Flags.String(),
			indexString(b.TryIndex),
			indexString(b.HndIndex),
		})
	}
	table.Render()
}

func indexString(i int) string {
	if i == 0 {
		return "-"
	}
	return strconv.Itoa(i)
}
