package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/datasetq/dsq/engine"
	"github.com/datasetq/dsq/loader"
	"github.com/datasetq/dsq/value"
	"github.com/datasetq/dsq/writer"
)

func main() {
	pflag.StringP("input", "i", "", "input format override (csv, json, jsonl, avro, parquet, arrow)")
	pflag.StringP("output", "o", "json", "output format (json, jsonl, csv, table, parquet, arrow, msgpack)")
	pflag.Bool("raw", false, "print string results without JSON quoting")
	pflag.String("error-mode", "strict", "runtime error handling: strict, collect, ignore")
	pflag.String("config", "", "path to the configuration file")
	pflag.Usage = usage

	// --arg takes two tokens (name, value), which pflag cannot express,
	// so those pairs are split off before parsing.
	vars, rest, err := extractArgs(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}
	if err := pflag.CommandLine.Parse(rest); err != nil {
		fail("%v", err)
	}

	viper.BindPFlags(pflag.CommandLine)
	viper.SetEnvPrefix("DSQ")
	viper.AutomaticEnv()

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			fail("cannot read config %s: %v", configFile, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.SetConfigName(".dsq")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(home)
		// A missing default config file is not an error.
		_ = viper.ReadInConfig()
	}

	positional := pflag.Args()
	if len(positional) < 1 {
		usage()
		os.Exit(1)
	}
	filter := positional[0]

	mode, err := parseErrorMode(viper.GetString("error-mode"))
	if err != nil {
		fail("%v", err)
	}

	opts := loader.Options{Format: viper.GetString("input")}
	var input value.Value
	if len(positional) >= 2 {
		input, err = loader.Load(positional[1], opts)
	} else {
		input, err = loader.LoadReader(os.Stdin, opts)
	}
	if err != nil {
		fail("%v", err)
	}

	exec := engine.NewExecutor(engine.ExecutorConfig{
		ErrorMode: mode,
		Variables: vars,
	})
	result, err := exec.Execute(filter, input)
	if err != nil {
		fail("%v", err)
	}
	for _, w := range exec.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	err = writer.Write(os.Stdout, result, writer.Options{
		Format: viper.GetString("output"),
		Raw:    viper.GetBool("raw"),
	})
	if err != nil {
		fail("%v", err)
	}
}

// extractArgs pulls every "--arg name value" triple out of the argument
// list and returns the bindings plus the remaining arguments.
func extractArgs(args []string) (map[string]value.Value, []string, error) {
	vars := make(map[string]value.Value)
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] != "--arg" {
			rest = append(rest, args[i])
			continue
		}
		if i+2 >= len(args) {
			return nil, nil, fmt.Errorf("--arg requires a name and a value")
		}
		vars[args[i+1]] = value.StrVal(args[i+2])
		i += 2
	}
	return vars, rest, nil
}

func parseErrorMode(s string) (engine.ErrorMode, error) {
	switch s {
	case "strict":
		return engine.Strict, nil
	case "collect":
		return engine.Collect, nil
	case "ignore":
		return engine.Ignore, nil
	default:
		return engine.Strict, fmt.Errorf("unknown error mode %q (want strict, collect, or ignore)", s)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dsq [flags] '<filter>' [file]")
	fmt.Fprintln(os.Stderr, "example: dsq -o table '.age > 21 | select(.)' users.csv")
	fmt.Fprintln(os.Stderr)
	pflag.PrintDefaults()
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
