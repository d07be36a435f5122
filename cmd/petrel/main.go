// petrel - script runner for the Petrel engine
//
// Compiles and runs Petrel scripts on the register interpreter, with an
// event loop driving timers and microtasks scheduled by the host bindings.
//
// Build: go build ./cmd/petrel
// Usage:
//
//	petrel script.js                # run a script file
//	petrel -e '1 + 2'               # evaluate an expression
//	petrel -d script.js             # print disassembly instead of running
//	petrel -config engine.toml ...  # load engine tuning from TOML
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/petrel-browser/petrel/compiler"
	"github.com/petrel-browser/petrel/vm"
)

var (
	expression  = flag.String("e", "", "Evaluate an expression and print its value")
	disassemble = flag.Bool("d", false, "Print bytecode disassembly instead of running")
	configPath  = flag.String("config", "", "Engine configuration file (TOML)")
	verbosity   = flag.Int("verbose", 0, "Log verbosity (0 = warnings, higher is chattier)")
	showStats   = flag.Bool("stats", false, "Print heap and interpreter statistics after the run")
)

func main() {
	flag.Parse()
	commonlog.Configure(*verbosity, nil)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "petrel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := vm.DefaultConfig()
	if *configPath != "" {
		loaded, err := vm.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	iso := vm.NewIsolate(cfg)
	ctx, err := iso.NewContext(compiler.NewBackend())
	if err != nil {
		return err
	}
	defer iso.DisposeContext(ctx)
	installHostBindings(ctx)

	if *expression != "" {
		return runExpression(ctx, *expression)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if *disassemble {
		fn, err := ctx.Compile(string(source))
		if err != nil {
			return err
		}
		printDisassembly(fn, "")
		return nil
	}

	result := ctx.Execute(string(source))
	if !result.Success {
		return result.Err
	}
	// Timers and microtasks scheduled during the run drain before exit.
	ctx.Loop().ProcessPendingTasks()

	if *showStats {
		printStats(ctx)
	}
	return nil
}

func runExpression(ctx *vm.Context, source string) error {
	if *disassemble {
		fn, err := compiler.NewBackend().CompileExpression(source)
		if err != nil {
			return err
		}
		printDisassembly(fn, "")
		return nil
	}
	value, err := ctx.Evaluate(source)
	if err != nil {
		return err
	}
	fmt.Println(value.ToStringValue())
	return nil
}

// installHostBindings wires the minimal host surface: print plus the timer
// and microtask entry points backed by the context's event loop.
func installHostBindings(ctx *vm.Context) {
	realm := ctx.Realm()
	loop := ctx.Loop()

	realm.InstallFunction("print", 1, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.ToStringValue()
		}
		fmt.Println(strings.Join(parts, " "))
		return vm.Undefined, nil
	})

	realm.InstallFunction("setTimeout", 2, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 || args[0].Kind() != vm.KindFunction {
			return vm.Undefined, vm.NewError(vm.ErrType, "setTimeout callback is not a function")
		}
		delay := 0.0
		if len(args) > 1 {
			delay = args[1].ToNumber()
		}
		id := loop.ScheduleTimeout(ctx.CallbackFor(args[0]), millis(delay))
		return vm.FromNumber(float64(id)), nil
	})

	realm.InstallFunction("setInterval", 2, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 || args[0].Kind() != vm.KindFunction {
			return vm.Undefined, vm.NewError(vm.ErrType, "setInterval callback is not a function")
		}
		delay := 0.0
		if len(args) > 1 {
			delay = args[1].ToNumber()
		}
		id := loop.ScheduleInterval(ctx.CallbackFor(args[0]), millis(delay))
		return vm.FromNumber(float64(id)), nil
	})

	realm.InstallFunction("clearTimeout", 1, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) > 0 {
			loop.CancelTimeout(uint64(args[0].ToNumber()))
		}
		return vm.Undefined, nil
	})

	realm.InstallFunction("clearInterval", 1, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) > 0 {
			loop.CancelInterval(uint64(args[0].ToNumber()))
		}
		return vm.Undefined, nil
	})

	realm.InstallFunction("queueMicrotask", 1, func(interp *vm.Interpreter, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 0 || args[0].Kind() != vm.KindFunction {
			return vm.Undefined, vm.NewError(vm.ErrType, "queueMicrotask callback is not a function")
		}
		loop.ScheduleMicrotask(ctx.CallbackFor(args[0]))
		return vm.Undefined, nil
	})
}

// printDisassembly prints a function and, recursively, its nested bodies.
func printDisassembly(fn *vm.CompiledFunction, indent string) {
	name := fn.Name
	if name == "" {
		name = "(toplevel)"
	}
	fmt.Printf("%s%s: %d params, %d registers, %d bytes\n",
		indent, name, fn.ParameterCount, fn.RegisterCount, len(fn.Bytecode))
	for _, line := range strings.Split(vm.Disassemble(fn), "\n") {
		fmt.Printf("%s  %s\n", indent, line)
	}
	for _, inner := range fn.Inner {
		printDisassembly(inner, indent+"    ")
	}
}

func millis(ms float64) time.Duration {
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func printStats(ctx *vm.Context) {
	heap := ctx.Interpreter().Heap()
	hs := heap.Stats()
	is := ctx.Interpreter().Stats()
	ls := ctx.Loop().Stats()
	fmt.Fprintf(os.Stderr, "heap: %d live objects, %d scavenges, %d mark-sweeps\n",
		heap.ObjectCount(), hs.ScavengeCount, hs.MarkSweepCount)
	fmt.Fprintf(os.Stderr, "interp: %d instructions, %d calls\n",
		is.InstructionsExecuted, is.FunctionCalls)
	fmt.Fprintf(os.Stderr, "loop: %d macrotasks, %d microtasks\n",
		ls.MacrotasksRun, ls.MicrotasksRun)
}
