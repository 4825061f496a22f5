// Command stackbound checks that no call path reachable from an
// interrupt/trap handler exceeds a fixed depth bound. Handlers in this
// kernel run on small, fixed-size stacks (the double-fault handler on
// a dedicated IST stack of a few pages, per gdt.DoubleFaultISTIndex);
// an unbounded or deeply recursive call chain reachable from one of
// them is a real stack-overflow risk that unit tests can't catch.
//
// Same spirit as the teacher's misc/depgraph "go mod graph -> dot"
// tool, grounded on it for the flat main/panic-on-error style, but
// answering a different question with a real static-analysis pass
// instead of a subprocess call.
package main

import (
	"flag"
	"fmt"
	"go/types"
	"os"

	"github.com/google/pprof/profile"
	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// entryPoints names the exported functions this kernel installs as
// trap/IRQ handlers — the roots the depth check walks from. Kept as a
// flat list rather than derived by convention, since not every
// Dispatcher.Install call site names its handler the same way.
var entryPoints = []string{
	"(*pebblekernel/trap.Dispatcher).Dispatch",
	"(*pebblekernel/sched.Scheduler).Tick",
}

func main() {
	maxDepth := flag.Int("max-depth", 24, "maximum call-chain depth reachable from any entry point")
	profilePath := flag.String("profile", "", "optional path to write a pprof profile of the call graph")
	flag.Parse()

	cfg := &packages.Config{Mode: packages.LoadAllSyntax}
	pkgs, err := packages.Load(cfg, "pebblekernel/...")
	if err != nil {
		fmt.Fprintln(os.Stderr, "stackbound: load:", err)
		os.Exit(1)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	prog, _ := ssautil.AllPackages(pkgs, 0)
	prog.Build()

	graph := cha.CallGraph(prog)
	graph.DeleteSyntheticNodes()

	violations := 0
	for _, name := range entryPoints {
		node := findNode(graph, name)
		if node == nil {
			fmt.Fprintf(os.Stderr, "stackbound: entry point %q not found in call graph\n", name)
			continue
		}
		depth := deepestPath(node, *maxDepth+1, map[*callgraph.Node]bool{})
		if depth > *maxDepth {
			fmt.Printf("stackbound: %s exceeds depth bound: %d > %d\n", name, depth, *maxDepth)
			violations++
		}
	}

	if *profilePath != "" {
		if err := writeCallGraphProfile(graph, *profilePath); err != nil {
			fmt.Fprintln(os.Stderr, "stackbound: profile:", err)
			os.Exit(1)
		}
	}

	if violations > 0 {
		os.Exit(1)
	}
}

func findNode(g *callgraph.Graph, qualifiedName string) *callgraph.Node {
	for fn, node := range g.Nodes {
		if fn == nil {
			continue
		}
		if funcLabel(fn) == qualifiedName {
			return node
		}
	}
	return nil
}

func funcLabel(fn *ssa.Function) string {
	if fn.Signature.Recv() == nil {
		return fn.Pkg.Pkg.Path() + "." + fn.Name()
	}
	recv := fn.Signature.Recv().Type()
	if ptr, ok := recv.(*types.Pointer); ok {
		return fmt.Sprintf("(*%s).%s", ptr.Elem(), fn.Name())
	}
	return fmt.Sprintf("(%s).%s", recv, fn.Name())
}

// deepestPath does a bounded DFS, stopping at limit so a genuine
// recursive cycle (which this kernel must not have on an interrupt
// path) reports as "exceeds the bound" rather than looping forever.
func deepestPath(n *callgraph.Node, limit int, visiting map[*callgraph.Node]bool) int {
	if limit <= 0 || visiting[n] {
		return limit + 1
	}
	visiting[n] = true
	defer delete(visiting, n)

	best := 0
	for _, edge := range n.Out {
		d := 1 + deepestPath(edge.Callee, limit-1, visiting)
		if d > best {
			best = d
		}
	}
	return best
}

// writeCallGraphProfile renders the call graph as a pprof profile (one
// sample per edge) so it can be opened with `go tool pprof -web` for a
// visual sanity check of what an IRQ handler can reach.
func writeCallGraphProfile(g *callgraph.Graph, path string) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "calls", Unit: "count"}},
	}
	funcs := map[string]*profile.Function{}
	locs := map[string]*profile.Location{}
	nextID := uint64(1)

	locationFor := func(name string) *profile.Location {
		if loc, ok := locs[name]; ok {
			return loc
		}
		fn, ok := funcs[name]
		if !ok {
			fn = &profile.Function{ID: nextID, Name: name}
			nextID++
			funcs[name] = fn
			p.Function = append(p.Function, fn)
		}
		loc := &profile.Location{
			ID:   nextID,
			Line: []profile.Line{{Function: fn}},
		}
		nextID++
		locs[name] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	for fn, node := range g.Nodes {
		if fn == nil {
			continue
		}
		callerLoc := locationFor(funcLabel(fn))
		for _, edge := range node.Out {
			if edge.Callee.Func == nil {
				continue
			}
			calleeLoc := locationFor(funcLabel(edge.Callee.Func))
			p.Sample = append(p.Sample, &profile.Sample{
				Location: []*profile.Location{calleeLoc, callerLoc},
				Value:    []int64{1},
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Write(f)
}
