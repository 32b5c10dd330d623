package main

import (
	"fmt"
	"strconv"

	"github.com/bluele/gcache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"huawei.com/wasm-host-driver/wasm/callframe"
	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/hostfuncs"
	"huawei.com/wasm-host-driver/wasm/interfaces"
)

type runOptions struct {
	engine    string
	module    string
	funcName  string
	hostFuncs []string
	fuel      uint64
	cache     bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [flags] [args...]",
	Short: "Call an exported function of a module",
	Long: `Call an exported function of a module. Arguments are converted to the
parameter types of the function; integers out of range of their parameter are
rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, runOpts, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOpts.engine, "engine", "wazero", "engine used to run the module")
	runCmd.Flags().StringVar(&runOpts.module, "module", "", "path to the WASM module")
	runCmd.Flags().StringVar(&runOpts.funcName, "func", "main", "exported function to call")
	runCmd.Flags().StringSliceVar(&runOpts.hostFuncs, "host-funcs", nil, "host functions to link as module.name, all when empty")
	runCmd.Flags().Uint64Var(&runOpts.fuel, "fuel", 0, "fuel budget, 0 for unbounded")
	runCmd.Flags().BoolVar(&runOpts.cache, "cache", false, "cache the compiled module")

	_ = runCmd.MarkFlagRequired("module")
}

func run(cmd *cobra.Command, opts runOptions, rawArgs []string) error {
	logger := newLogger(cmd)

	engine, err := engines.Get(opts.engine)
	if err != nil {
		return err
	}

	var cache gcache.Cache
	if opts.cache {
		cache = gcache.New(1).LRU().Build()
	}

	engine.Init(logger.Named(opts.engine), cache)

	hostFuncs, err := hostfuncs.Select(opts.hostFuncs)
	if err != nil {
		return err
	}

	args, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}

	instance, err := engine.InstantiateModule(opts.module, interfaces.InstanceOptions{
		HostFuncs: hostFuncs,
		Fuel:      opts.fuel,
		UserData: &hostfuncs.TaskContext{
			Logger: logger.Named("guest"),
			Name:   opts.module,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "unable to instantiate %s", opts.module)
	}
	defer instance.Cleanup()

	result, err := instance.CallFunc(opts.funcName, args...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "result: %v\n", result)

	if consumed, err := instance.FuelConsumed(); err == nil {
		fmt.Fprintf(out, "fuel consumed: %d\n", consumed)
	} else {
		logger.Debug("fuel accounting unavailable", "error", err)
	}

	stats := callframe.Default().Stats()
	fmt.Fprintf(out, "callers: allocated=%d reused=%d retired=%d dropped=%d\n",
		stats.Allocated, stats.Reused, stats.Retired, stats.Dropped)

	return nil
}

func parseArgs(rawArgs []string) ([]interface{}, error) {
	args := make([]interface{}, len(rawArgs))

	for n, raw := range rawArgs {
		if i, err := strconv.Atoi(raw); err == nil {
			args[n] = i

			continue
		}

		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(engines.ErrBadArgument, "argument %d: %q is not a number", n, raw)
		}

		args[n] = f
	}

	return args, nil
}
