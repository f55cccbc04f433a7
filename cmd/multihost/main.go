package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"multihost/internal/fixture"
	"multihost/internal/loader"
	"multihost/internal/preflight"
	"multihost/internal/remote"
	"multihost/internal/runlog"
	"multihost/internal/topology"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "hosts":
		err = cmdHosts(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "preflight":
		err = cmdPreflight(os.Args[2:])
	case "history":
		err = cmdHistory(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: multihost <command> [flags]

commands:
  validate   load a configuration file and report problems
  hosts      list the configured domains and hosts
  run        run a command on a host selected by name
  preflight  scan the pool's SSH ports for reachability
  history    list recorded command runs from a journal`)
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "multihost.yaml", "configuration file")
	out := fs.String("o", "", "re-export the loaded configuration to this path")
	fs.Parse(args)

	cfg, err := loader.Load(*configPath)
	if err != nil {
		return err
	}
	hosts := 0
	for _, d := range cfg.Domains {
		hosts += len(d.Hosts)
	}
	log.Printf("configuration OK: %d domains, %d hosts", len(cfg.Domains), hosts)
	if *out != "" {
		return loader.Save(cfg, *out)
	}
	return nil
}

func cmdHosts(args []string) error {
	fs := flag.NewFlagSet("hosts", flag.ExitOnError)
	configPath := fs.String("config", "multihost.yaml", "configuration file")
	fs.Parse(args)

	cfg, err := loader.Load(*configPath)
	if err != nil {
		return err
	}
	for _, d := range cfg.Domains {
		fmt.Printf("%s (type %s)\n", d.Name, d.Type)
		for _, h := range d.Hosts {
			fmt.Printf("  %-12s %-30s %s\n", h.Role, h.Hostname, h.IP)
		}
	}
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "multihost.yaml", "configuration file")
	hostName := fs.String("host", "", "host to run on, by hostname or shortname")
	journalPath := fs.String("journal", "", "record the run in this journal database")
	noEnv := fs.Bool("no-env", false, "do not source env.sh before the command")
	script := fs.Bool("script", false, "treat the arguments as one shell script string")
	fs.Parse(args)

	argv := fs.Args()
	if *hostName == "" || len(argv) == 0 {
		return errors.New("need -host and a command to run")
	}

	cfg, err := loader.Load(*configPath)
	if err != nil {
		return err
	}

	if *journalPath != "" {
		journal, err := runlog.Open(*journalPath)
		if err != nil {
			return err
		}
		defer journal.Close()
		fixture.AttachJournal(cfg, journal)
	}

	host, err := cfg.HostByName(*hostName)
	if err != nil {
		return err
	}

	var opts []topology.RunOption
	opts = append(opts, topology.NoRaiseOnError())
	if *noEnv {
		opts = append(opts, topology.WithoutEnv())
	}

	var cmd *remote.Command
	if *script {
		cmd, err = host.RunScript(argv[0], opts...)
	} else {
		cmd, err = host.RunCommand(argv, opts...)
	}
	if err != nil {
		return err
	}
	os.Stdout.Write(cmd.StdoutBytes())
	if cmd.ReturnCode() != 0 {
		os.Exit(cmd.ReturnCode())
	}
	return nil
}

func cmdPreflight(args []string) error {
	fs := flag.NewFlagSet("preflight", flag.ExitOnError)
	configPath := fs.String("config", "multihost.yaml", "configuration file")
	fs.Parse(args)

	cfg, err := loader.Load(*configPath)
	if err != nil {
		return err
	}
	results, err := preflight.Check(context.Background(), cfg)
	if err != nil {
		return err
	}
	unreachable := 0
	for _, r := range results {
		state := "open"
		if !r.Open {
			state = "unreachable"
			unreachable++
		}
		fmt.Printf("%-30s %-16s port %-5d %s\n", r.Hostname, r.Addr, r.Port, state)
	}
	if unreachable > 0 {
		return fmt.Errorf("%d of %d hosts unreachable", unreachable, len(results))
	}
	return nil
}

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	journalPath := fs.String("journal", "multihost-journal.db", "journal database")
	hostName := fs.String("host", "", "only show runs on this host")
	limit := fs.Int("limit", 20, "maximum number of runs to show")
	fs.Parse(args)

	journal, err := runlog.Open(*journalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.ListRuns(context.Background(), *hostName, *limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %-30s rc=%-3d %8s  %s\n",
			e.StartedAt.Format("2006-01-02 15:04:05"), e.Host, e.ReturnCode,
			e.Duration.Round(time.Millisecond), e.Argv)
	}
	return nil
}
