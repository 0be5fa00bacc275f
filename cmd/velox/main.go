// Package main provides the velox CLI: a reference harness for
// loading, inspecting, running, converting and benchmarking models
// against the inference runtime.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/veloxrt/velox/session"
	"github.com/veloxrt/velox/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("velox %s\n", version)
		return
	case "run":
		err = cmdRun(os.Args[2:])
	case "info":
		err = cmdInfo(os.Args[2:])
	case "convert":
		err = cmdConvert(os.Args[2:])
	case "benchmark":
		err = cmdBenchmark(os.Args[2:])
	case "profile":
		err = cmdProfile(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "velox: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("velox - inference runtime CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run <model>          load, prepare and run a model with zero-filled inputs")
	fmt.Println("  info <model>         print a model's inputs, outputs and node count")
	fmt.Println("  convert <in> <out>   load a model and re-emit it through the optimizer pipeline (diagnostic only)")
	fmt.Println("  benchmark <list>     run every model named in a newline-delimited list file and report timings")
	fmt.Println("  profile <model>      run a model once with per-node timings")
	fmt.Println("  version              print the CLI version")
}

func newSession() *session.Session {
	opts := session.DefaultOptions()
	return session.Create(opts)
}

// loadAndPrepare loads path and drives the session through Prepare,
// the shared first step of run/info/convert/profile.
func loadAndPrepare(path string) (*session.Session, error) {
	s := newSession()
	if err := s.LoadModel(path); err != nil {
		return nil, err
	}
	if err := s.Prepare(); err != nil {
		return nil, err
	}
	return s, nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("run: missing <model> argument")
	}
	model := fs.Arg(0)

	s, err := loadAndPrepare(model)
	if err != nil {
		return err
	}

	inputs := make([]*tensor.Tensor, len(s.InputNames()))
	for i := range inputs {
		t, err := s.CreateInputTensor(i)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		inputs[i] = t
	}

	start := time.Now()
	outputs, err := s.Run(inputs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	names := s.OutputNames()
	for i, out := range outputs {
		fmt.Printf("output %q: shape=%s dtype=%s\n", names[i], out.Shape(), out.DType())
	}
	fmt.Printf("ran in %s\n", elapsed)
	return nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("info: missing <model> argument")
	}

	s := newSession()
	if err := s.LoadModel(fs.Arg(0)); err != nil {
		return err
	}

	fmt.Println("Inputs:")
	for i, name := range s.InputNames() {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("Outputs:")
	for i, name := range s.OutputNames() {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Printf("Nodes: %d\n", len(s.Graph().Nodes()))
	return nil
}

func cmdConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("convert: usage: convert <in> <out>")
	}

	s, err := loadAndPrepare(fs.Arg(0))
	if err != nil {
		return err
	}

	g := s.Graph()
	snap, err := g.Snapshot()
	if err != nil {
		return fmt.Errorf("convert: snapshotting optimized graph: %w", err)
	}
	if err := os.WriteFile(fs.Arg(1), []byte(snap), 0o644); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	fmt.Printf("wrote optimized graph snapshot (%d nodes) to %s\n", len(g.Nodes()), fs.Arg(1))
	return nil
}

func cmdBenchmark(args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("benchmark: missing <list-file> argument")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" || strings.HasPrefix(path, "#") {
			continue
		}

		s, err := loadAndPrepare(path)
		if err != nil {
			fmt.Printf("%s: FAILED (%v)\n", path, err)
			continue
		}
		inputs := make([]*tensor.Tensor, len(s.InputNames()))
		for i := range inputs {
			t, err := s.CreateInputTensor(i)
			if err != nil {
				fmt.Printf("%s: FAILED (%v)\n", path, err)
				continue
			}
			inputs[i] = t
		}

		start := time.Now()
		if _, err := s.Run(inputs); err != nil {
			fmt.Printf("%s: FAILED (%v)\n", path, err)
			continue
		}
		fmt.Printf("%s: %s\n", path, time.Since(start))
	}
	return scanner.Err()
}

func cmdProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("profile: missing <model> argument")
	}

	s, err := loadAndPrepare(fs.Arg(0))
	if err != nil {
		return err
	}

	inputs := make([]*tensor.Tensor, len(s.InputNames()))
	for i := range inputs {
		t, err := s.CreateInputTensor(i)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		inputs[i] = t
	}

	_, result, err := s.Profile(inputs)
	if err != nil {
		return err
	}

	for _, n := range result.Nodes {
		fmt.Printf("  node %d %-20s %-12s %8.3fms  %d bytes\n", n.NodeID, n.Name, n.OpType, n.TimeMS, n.Bytes)
	}
	fmt.Printf("total: %.3fms, peak memory: %d bytes\n", result.TotalMS, result.PeakBytes)
	return nil
}
