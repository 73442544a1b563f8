package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/djrrb/subrize"
	"github.com/npillmayer/schuko/schukonf/testconfig"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/npillmayer/schuko/tracing/trace2go"
	"github.com/pterm/pterm"
	"github.com/tdewolff/argp"
)

// tracer traces with key 'subrize'
func tracer() tracing.Trace {
	return tracing.Select("subrize")
}

func main() {
	cmd := argp.New("Subroutinizer for Type 2 charstrings")
	cmd.AddCmd(&Compress{}, "compress", "Subroutinize a charstring dump")
	cmd.Parse()
}

type Compress struct {
	Output   string `short:"o" desc:"Output charstring dump, defaults to stdout."`
	Rounds   int    `desc:"Number of optimization rounds, default 4."`
	Workers  int    `desc:"Number of parallel workers, 1 disables parallelism, 0 uses all CPUs."`
	MaxSubrs int    `name:"max-subrs" desc:"Maximum number of subroutines per table, default 65533."`
	Trace    string `desc:"Trace level [Debug|Info|Error], default Info."`
	Input    string `index:"0" desc:"Input charstring dump: one 'glyph fd hexbytes' line per glyph."`
}

func (cmd *Compress) Run() error {
	if err := setupTracing(cmd.Trace); err != nil {
		return err
	}

	glyphs, fds, bytesIn, err := readDump(cmd.Input)
	if err != nil {
		return err
	}

	nFDs := 1
	var fdSelect func(string) int
	for _, fd := range fds {
		if nFDs <= fd {
			nFDs = fd + 1
		}
	}
	if 1 < nFDs {
		fdSelect = func(name string) int { return fds[name] }
	}

	res, err := subrize.Subroutinize(glyphs, fdSelect, nFDs, &subrize.Options{
		NRounds:  cmd.Rounds,
		MaxSubrs: cmd.MaxSubrs,
		Workers:  cmd.Workers,
	})
	if err != nil {
		return err
	}

	bytesOut, err := writeDump(cmd.Output, res)
	if err != nil {
		return err
	}

	pterm.Info.Printfln("%d glyphs, %d global subrs, %d local tables", len(res.Glyphs), len(res.GlobalSubrs), len(res.LocalSubrs))
	pterm.Info.Printfln("charstring bytes: %s -> %s", humanSize(bytesIn), humanSize(bytesOut))
	return nil
}

func setupTracing(tlevel string) error {
	tracing.RegisterTraceAdapter("go", gologadapter.GetAdapter(), false)
	conf := testconfig.Conf{
		"tracing.adapter": "go",
		"trace.subrize":   "Info",
	}
	if err := trace2go.ConfigureRoot(conf, "trace", trace2go.ReplaceTracers(true)); err != nil {
		return err
	}
	tracing.SetTraceSelector(trace2go.Selector())
	switch tlevel {
	case "Debug":
		tracer().SetTraceLevel(tracing.LevelDebug)
	case "Info", "":
		tracer().SetTraceLevel(tracing.LevelInfo)
	case "Error":
		tracer().SetTraceLevel(tracing.LevelError)
	default:
		return fmt.Errorf("invalid trace level: %s", tlevel)
	}
	return nil
}

// readDump parses a charstring dump: one line per glyph of the form
// 'name fd hexbytes', with blank lines and #-comments skipped.
func readDump(input string) (map[string][]subrize.Token, map[string]int, int, error) {
	var r *os.File
	var err error
	if input == "" || input == "-" {
		r = os.Stdin
	} else if r, err = os.Open(input); err != nil {
		return nil, nil, 0, err
	} else {
		defer r.Close()
	}

	glyphs := map[string][]subrize.Token{}
	fds := map[string]int{}
	size := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, nil, 0, fmt.Errorf("line %d: expected 'glyph fd hexbytes'", line)
		}
		fd, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, nil, 0, fmt.Errorf("line %d: bad FD index: %v", line, err)
		}
		b, err := hex.DecodeString(fields[2])
		if err != nil {
			return nil, nil, 0, fmt.Errorf("line %d: bad hex charstring: %v", line, err)
		}
		program, err := subrize.ParseCharString(b)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("line %d: %v", line, err)
		}
		glyphs[fields[0]] = program
		fds[fields[0]] = fd
		size += len(b)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, 0, err
	}
	return glyphs, fds, size, nil
}

// writeDump compiles the result back to bytecode and writes it as a hex dump
// with gsubrs, lsubrs, and charstrings sections.
func writeDump(output string, res *subrize.Result) (int, error) {
	var w *os.File
	var err error
	if output == "" || output == "-" {
		w = os.Stdout
	} else if w, err = os.Create(output); err != nil {
		return 0, err
	} else {
		defer w.Close()
	}

	size := 0
	emit := func(program []subrize.Token) (string, error) {
		b, err := subrize.CompileCharString(program)
		if err != nil {
			return "", err
		}
		size += len(b)
		return hex.EncodeToString(b), nil
	}

	fmt.Fprintln(w, "gsubrs")
	for _, program := range res.GlobalSubrs {
		s, err := emit(program)
		if err != nil {
			return 0, err
		}
		fmt.Fprintln(w, s)
	}
	for fd, table := range res.LocalSubrs {
		fmt.Fprintf(w, "lsubrs %d\n", fd)
		for _, program := range table {
			s, err := emit(program)
			if err != nil {
				return 0, err
			}
			fmt.Fprintln(w, s)
		}
	}

	names := make([]string, 0, len(res.Glyphs))
	for name := range res.Glyphs {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "charstrings")
	for _, name := range names {
		s, err := emit(res.Glyphs[name])
		if err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "%s %s\n", name, s)
	}
	return size, nil
}

// humanSize returns a byte count in human-readable units.
func humanSize(n int) string {
	v := float64(n)
	for _, unit := range []string{"bytes", "KB", "MB"} {
		if v < 1024.0 {
			return fmt.Sprintf("%3.1f %s", v, unit)
		}
		v /= 1024.0
	}
	return fmt.Sprintf("%3.1f GB", v)
}
