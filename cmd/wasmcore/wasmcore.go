package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tetratelabs/wasmcore"
	"github.com/tetratelabs/wasmcore/api"
	"github.com/tetratelabs/wasmcore/internal/version"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "compile":
		doCompile(flag.Args()[1:], stdErr, exit)
	case "inspect":
		doInspect(flag.Args()[1:], stdOut, stdErr, exit)
	case "run":
		doRun(flag.Args()[1:], stdOut, stdErr, exit)
	case "version":
		fmt.Fprintln(stdOut, version.GetVersion())
		exit(0)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func doCompile(args []string, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("compile", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	_ = flags.Parse(args)

	if help {
		printCompileUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printCompileUsage(stdErr, flags)
		exit(1)
	}
	wasm := readWasm(flags.Arg(0), stdErr, exit)

	ctx := context.Background()
	rt := wasmcore.NewRuntime(ctx)
	defer rt.Close(ctx)

	if _, err := rt.CompileModule(ctx, wasm); err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		exit(1)
	} else {
		exit(0)
	}
}

func doRun(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var invoke string
	flags.StringVar(&invoke, "invoke", "_start", "name of the exported function to call")

	var writes sliceFlag
	flags.Var(&writes, "write", "text to write into memory before the call, in the form of <offset>:<text>. "+
		"Can be specified multiple times.")

	var writes32 sliceFlag
	flags.Var(&writes32, "write32", "i32 values to write into memory before the call, in the form of "+
		"<offset>:<n>[,<n>...]. Can be specified multiple times.")

	var reads sliceFlag
	flags.Var(&reads, "read", "memory range to print as text after the call, in the form of <offset>:<length>. "+
		"Can be specified multiple times.")

	var reads32 sliceFlag
	flags.Var(&reads32, "read32", "memory range to print as i32 values after the call, in the form of "+
		"<offset>:<count>. Can be specified multiple times.")

	var fuel uint64
	flags.Uint64Var(&fuel, "fuel", 0, "maximum instructions the call may execute, or zero for unlimited")

	var timeout time.Duration
	flags.DurationVar(&timeout, "timeout", 0, "if a wasm binary runs longer than the given duration string, then "+
		"it will be terminated. For example, '5s'. Zero means no timeout.")

	var verbose bool
	flags.BoolVar(&verbose, "v", false, "log runtime events to stderr")

	_ = flags.Parse(args)

	if help {
		printRunUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printRunUsage(stdErr, flags)
		exit(1)
	}
	wasm := readWasm(flags.Arg(0), stdErr, exit)
	wasmArgs := flags.Args()[1:]
	if len(wasmArgs) > 0 && wasmArgs[0] == "--" {
		wasmArgs = wasmArgs[1:]
	}

	rc := wasmcore.NewRuntimeConfig().WithFuel(fuel)
	if verbose {
		logger := newLogger(stdErr)
		defer logger.Sync() //nolint
		rc = rc.WithLogger(logger)
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		rc = rc.WithCloseOnContextDone(true)
	}

	rt := wasmcore.NewRuntimeWithConfig(ctx, rc)
	defer rt.Close(ctx)

	code, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		exit(1)
	}

	mod, err := rt.InstantiateModule(ctx, code, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "error instantiating wasm binary: %v\n", err)
		exit(1)
	}

	mem := mod.Memory()
	for _, w := range writes {
		if err = writeText(mem, w); err != nil {
			fmt.Fprintf(stdErr, "invalid -write %q: %v\n", w, err)
			exit(1)
		}
	}
	for _, w := range writes32 {
		if err = writeI32s(mem, w); err != nil {
			fmt.Fprintf(stdErr, "invalid -write32 %q: %v\n", w, err)
			exit(1)
		}
	}

	fn := mod.ExportedFunction(invoke)
	if fn == nil {
		fmt.Fprintf(stdErr, "error running wasm binary: %v\n", &api.ExportNotFoundError{ModuleName: mod.Name(), Name: invoke})
		exit(1)
	}

	params, err := parseParams(fn.ParamTypes(), wasmArgs)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid params calling %s: %v\n", invoke, err)
		exit(1)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		fmt.Fprintf(stdErr, "error running wasm binary: %v\n", err)
		exit(1)
	}
	if len(results) > 0 {
		fmt.Fprintf(stdOut, "results: %s\n", formatResults(fn.ResultTypes(), results))
	}

	for _, r := range reads {
		out, err := readText(mem, r)
		if err != nil {
			fmt.Fprintf(stdErr, "invalid -read %q: %v\n", r, err)
			exit(1)
		}
		fmt.Fprintln(stdOut, out)
	}
	for _, r := range reads32 {
		out, err := readI32s(mem, r)
		if err != nil {
			fmt.Fprintf(stdErr, "invalid -read32 %q: %v\n", r, err)
			exit(1)
		}
		fmt.Fprintln(stdOut, out)
	}
	exit(0)
}

func readWasm(wasmPath string, stdErr io.Writer, exit func(code int)) []byte {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
	}
	return wasm
}

// newLogger returns a development logger writing to stdErr.
func newLogger(stdErr io.Writer) *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(stdErr), zapcore.DebugLevel)
	return zap.New(core, zap.Development())
}

var errNoMemory = errors.New("module has no memory")

// parseRange splits "<offset>:<rest>" into the offset and rest.
func parseRange(s string) (uint32, string, error) {
	off, rest, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", errors.New("expected <offset>:<value>")
	}
	offset, err := strconv.ParseUint(off, 0, 32)
	if err != nil {
		return 0, "", fmt.Errorf("invalid offset: %w", err)
	}
	return uint32(offset), rest, nil
}

func writeText(mem api.Memory, s string) error {
	if mem == nil {
		return errNoMemory
	}
	offset, text, err := parseRange(s)
	if err != nil {
		return err
	}
	return mem.Write(offset, []byte(text))
}

func writeI32s(mem api.Memory, s string) error {
	if mem == nil {
		return errNoMemory
	}
	offset, list, err := parseRange(s)
	if err != nil {
		return err
	}
	for i, n := range strings.Split(list, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(n), 0, 32)
		if err != nil {
			return fmt.Errorf("value[%d]: %w", i, err)
		}
		addr := uint64(offset) + uint64(i)*4
		if addr > math.MaxUint32 || !mem.WriteUint32Le(uint32(addr), uint32(v)) {
			return &api.OutOfBoundsError{Offset: uint32(min(addr, math.MaxUint32)), Length: 4, Size: mem.Size()}
		}
	}
	return nil
}

func readText(mem api.Memory, s string) (string, error) {
	if mem == nil {
		return "", errNoMemory
	}
	offset, l, err := parseRange(s)
	if err != nil {
		return "", err
	}
	length, err := strconv.ParseUint(l, 0, 32)
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	buf, err := mem.Read(offset, uint32(length))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("memory[%d:%d]: %q", offset, uint64(offset)+length, buf), nil
}

func readI32s(mem api.Memory, s string) (string, error) {
	if mem == nil {
		return "", errNoMemory
	}
	offset, c, err := parseRange(s)
	if err != nil {
		return "", err
	}
	count, err := strconv.ParseUint(c, 0, 30)
	if err != nil {
		return "", fmt.Errorf("invalid count: %w", err)
	}
	buf, err := mem.Read(offset, uint32(count*4))
	if err != nil {
		return "", err
	}
	values := make([]string, count)
	for i := range values {
		v := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		values[i] = strconv.FormatInt(int64(int32(v)), 10)
	}
	return fmt.Sprintf("memory[%d:%d] as i32: [%s]", offset, uint64(offset)+count*4, strings.Join(values, " ")), nil
}

// parseParams converts the arguments to the encoding of the param types.
func parseParams(types []api.ValueType, args []string) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, fmt.Errorf("expected %d params, but passed %d", len(types), len(args))
	}
	params := make([]uint64, len(args))
	for i, arg := range args {
		switch types[i] {
		case api.ValueTypeI32:
			v, err := strconv.ParseInt(arg, 0, 32)
			if err != nil {
				// Allow unsigned values above MaxInt32, such as 0xffffffff.
				u, uerr := strconv.ParseUint(arg, 0, 32)
				if uerr != nil {
					return nil, fmt.Errorf("param[%d]: %w", i, err)
				}
				v = int64(int32(uint32(u)))
			}
			params[i] = api.EncodeI32(int32(v))
		case api.ValueTypeI64:
			v, err := strconv.ParseInt(arg, 0, 64)
			if err != nil {
				u, uerr := strconv.ParseUint(arg, 0, 64)
				if uerr != nil {
					return nil, fmt.Errorf("param[%d]: %w", i, err)
				}
				v = int64(u)
			}
			params[i] = api.EncodeI64(v)
		case api.ValueTypeF32:
			v, err := strconv.ParseFloat(arg, 32)
			if err != nil {
				return nil, fmt.Errorf("param[%d]: %w", i, err)
			}
			params[i] = api.EncodeF32(float32(v))
		case api.ValueTypeF64:
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("param[%d]: %w", i, err)
			}
			params[i] = api.EncodeF64(v)
		}
	}
	return params, nil
}

func formatResults(types []api.ValueType, results []uint64) string {
	values := make([]string, len(results))
	for i, r := range results {
		values[i] = api.Value{Type: types[i], Bits: r}.String()
	}
	return "[" + strings.Join(values, " ") + "]"
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wasmcore CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmcore <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  compile\tDecodes and validates a WebAssembly binary")
	fmt.Fprintln(stdErr, "  inspect\tPrints the types, imports, exports and memory of a WebAssembly binary")
	fmt.Fprintln(stdErr, "  run\t\tCalls a function exported by a WebAssembly binary")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of wasmcore CLI")
}

func printCompileUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wasmcore CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmcore compile <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printInspectUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wasmcore CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmcore inspect <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printRunUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wasmcore CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmcore run <options> <path to wasm file> [--] <params>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

type sliceFlag []string

func (f *sliceFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *sliceFlag) Set(s string) error {
	*f = append(*f, s)
	return nil
}
