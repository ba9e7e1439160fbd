// Command loomd is the thin cobra-based CLI entrypoint SPEC_FULL.md scopes
// in as ambient surface (serve/eval/dump-verb/list-verbs/obj-info/ancestry),
// replacing the teacher's flag-based cmd/barn entrypoints. Configuration
// loading beyond these flags, and anything resembling the RPC/auth layer,
// stays out of scope per spec §1.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"loom/builtin"
	"loom/kv"
	"loom/logging"
	"loom/server"
	"loom/task"
	"loom/value"
	"loom/world"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "loomd",
		Short: "loomd runs and inspects a loom world database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "loom.db", "path to the world database file")

	root.AddCommand(serveCmd(), evalCmd(), dumpVerbCmd(), listVerbsCmd(), objInfoCmd(), ancestryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore() (*world.Store, error) {
	kvs, err := kv.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return world.Open(kvs)
}

func serveCmd() *cobra.Command {
	var addr string
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "accept connections and run tasks against the world database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			log := logging.Named("loomd")
			log.Infow("starting", "db", dbPath, "addr", addr)
			srv := server.New(store, workers)
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":7777", "listen address")
	cmd.Flags().IntVar(&workers, "workers", 4, "max concurrent task bursts")
	return cmd
}

func evalCmd() *cobra.Command {
	var playerID int64
	cmd := &cobra.Command{
		Use:   "eval [code]",
		Short: "compile and run a snippet as a wizard eval task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			reg := builtin.NewRegistry()
			sched := task.NewScheduler(store, reg, 1)
			player := value.Numbered(playerID)
			sess := nullSession{}
			start := sched.EvalStarter(player, player, player, player, args[0], sess)
			t := sched.Submit(player, task.TaskEval, sess, start)
			if err := sched.RunSync(t); err != nil {
				return err
			}
			if t.Err != nil {
				fmt.Println(t.Err.String())
				return nil
			}
			fmt.Println(t.Result.String())
			return nil
		},
	}
	cmd.Flags().Int64Var(&playerID, "player", 2, "player object id to run as")
	return cmd
}

func dumpVerbCmd() *cobra.Command {
	var objID int64
	var verbName string
	cmd := &cobra.Command{
		Use:   "dump-verb",
		Short: "print a compiled verb's stored source",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			txn, err := store.Begin()
			if err != nil {
				return err
			}
			def, definer, _, ok := txn.FindVerb(value.Numbered(objID), verbName)
			if !ok {
				return fmt.Errorf("verb not found: %s:%s", value.Numbered(objID), verbName)
			}
			prog, ok := txn.VerbProgram(definer, def.UUID)
			if !ok {
				return fmt.Errorf("no program for verb")
			}
			if len(prog.Source) > 0 {
				for _, line := range prog.Source {
					fmt.Println(line)
				}
			} else {
				fmt.Printf("<compiled, %d opcodes, no stored source>\n", len(prog.Code))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&objID, "obj", 0, "object id")
	cmd.Flags().StringVar(&verbName, "verb", "", "verb name")
	return cmd
}

func listVerbsCmd() *cobra.Command {
	var objID int64
	cmd := &cobra.Command{
		Use:   "list-verbs",
		Short: "list an object's own verbdefs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			txn, err := store.Begin()
			if err != nil {
				return err
			}
			for _, def := range txn.VerbDefs(value.Numbered(objID)) {
				fmt.Printf("%s (%v)\n", def.Names, def.Args)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&objID, "obj", 0, "object id")
	return cmd
}

func objInfoCmd() *cobra.Command {
	var objID int64
	cmd := &cobra.Command{
		Use:   "obj-info",
		Short: "print an object's flags/name/owner/parent/location",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			txn, err := store.Begin()
			if err != nil {
				return err
			}
			obj := value.Numbered(objID)
			fmt.Printf("name: %s\nowner: %s\nparent: %s\nlocation: %s\nflags: %v\n",
				txn.Name(obj), txn.Owner(obj).String(), txn.Parent(obj).String(), txn.Location(obj).String(), txn.Flags(obj))
			return nil
		},
	}
	cmd.Flags().Int64Var(&objID, "obj", 0, "object id")
	return cmd
}

func ancestryCmd() *cobra.Command {
	var objID int64
	cmd := &cobra.Command{
		Use:   "ancestry",
		Short: "print an object's parent chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			txn, err := store.Begin()
			if err != nil {
				return err
			}
			for _, a := range txn.Ancestry(value.Numbered(objID)) {
				fmt.Println(a.String())
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&objID, "obj", 0, "object id")
	return cmd
}

type nullSession struct{}

func (nullSession) Notify(player value.ObjID, text string) { fmt.Println(text) }
func (nullSession) Disconnect(value.ObjID)                  {}
