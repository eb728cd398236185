// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"amigo/internal/dataflow"
	"amigo/internal/diagnostics"
	"amigo/internal/gvn"
	"amigo/internal/pass"
	"amigo/internal/reader"
	"amigo/internal/regalloc"
	"amigo/internal/ssa"
	"amigo/internal/vdcm"
	"amigo/internal/writer"
)

func main() {
	var (
		passList   = flag.String("passes", "", "comma-separated pass sequence, e.g. gvn-rpo,vdcm,reg-realloc")
		gvnMode    = flag.String("gvn-mode", "var", "GVN numbering mode for gvn-rpo/gvn-scc (var or expr)")
		gvnVariant = flag.String("gvn-variant", "rpo", "GVN variant consumed by available/anticipatable/vdcm (rpo, scc, gargi, or any; vdcm rejects gargi)")
		bits       = flag.Uint("bits", 128, "signed bit-width for expression arithmetic")
		numReg     = flag.Uint("numreg", 4, "machine registers available to reg-realloc")
		verbose    = flag.Bool("v", false, "trace each analysis/pass as it runs")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: amic [flags] <file.ami>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(3)
	}
	path := flag.Arg(0)

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %v", path, err)
		os.Exit(3)
	}

	cfg, err := reader.ParseString(path, string(source))
	if err != nil {
		report(path, string(source), err)
		os.Exit(diagnostics.FromError(path, err).ExitCode())
	}

	m := pass.NewManager(cfg)
	if *verbose {
		m.Trace(func(msg string) { fmt.Fprintln(os.Stderr, color.HiBlackString(msg)) })
	}
	must(m.Register(pass.NewDefAnalysis()))
	must(m.Register(pass.NewLiveAnalysis()))
	must(m.Register(ssa.Analysis{}))

	sequence := splitPasses(*passList)
	for _, name := range sequence {
		p, err := buildPass(name, *gvnMode, *gvnVariant, *bits, *numReg)
		if err != nil {
			report(path, string(source), err)
			os.Exit(diagnostics.FromError(path, err).ExitCode())
		}
		if err := m.Run(p); err != nil {
			report(path, string(source), err)
			os.Exit(diagnostics.FromError(path, err).ExitCode())
		}
	}

	fmt.Print(writer.Write(cfg))
	color.Green("# ok: %s", path)
}

func splitPasses(flagValue string) []string {
	if flagValue == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(flagValue, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildPass constructs the named pass, the CLI's only narrow
// interface onto the core packages' constructors.
func buildPass(name, gvnMode, gvnVariant string, bits, numReg uint) (pass.Pass, error) {
	switch name {
	case "branch-elim":
		return pass.BranchElim{}, nil
	case "dce":
		return pass.DCE{}, nil
	case "phi-elim":
		return pass.PhiElim{}, nil
	case "gvn-rpo":
		return gvn.NewRPO(gvnMode, bits)
	case "gvn-scc":
		return gvn.NewSCC(gvnMode, bits)
	case "gargi-gvn":
		return gvn.NewGargi(bits), nil
	case "available":
		return dataflow.NewAvailAnalysis(gvnVariant, bits)
	case "anticipatable":
		return dataflow.NewAnticipate(gvnVariant, bits)
	case "vdcm":
		return vdcm.New(gvnVariant, bits)
	case "reg-realloc":
		return regalloc.New(int(numReg)), nil
	}
	return nil, fmt.Errorf("unknown pass %q", name)
}

func report(path, source string, err error) {
	ce := diagnostics.FromError(path, err)
	r := diagnostics.NewReporter(path, source)
	fmt.Fprint(os.Stderr, r.Format(ce))
}

func must(err error) {
	if err != nil {
		color.Red("internal error: %v", err)
		os.Exit(1)
	}
}
