package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/trezcool/minierp/core/cache"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/core/risk"
	"github.com/trezcool/minierp/storage"
)

// mockable
var (
	openStoreFunc  = storage.OpenStore
	isTerminalFunc = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
)

func (cli *commandLine) evaluate(studentID string) error {
	ctx := context.Background()
	store, err := openStoreFunc(ctx, cli.conf, cli.logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(ctx) }()

	gw := docstore.NewGateway(store, cli.conf.DocStore.Timeout, cli.logger, nil)
	snapshots := cache.New(gw, cache.Options{Logger: cli.logger})
	defer snapshots.Close()
	evaluator := risk.NewEvaluator(snapshots, gw, cli.conf.Cache.SignalsTTL)

	var items []risk.Assessment
	if studentID != "" {
		items = []risk.Assessment{evaluator.Evaluate(ctx, studentID)}
	} else {
		items = evaluator.EvaluateAll(ctx)
	}

	if isTerminalFunc() {
		return cli.printTable(items)
	}
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func (cli *commandLine) printTable(items []risk.Assessment) error {
	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tATTENDANCE\tSCORE\tLEVEL\tREASONS")
	for _, a := range items {
		fmt.Fprintf(w, "%s\t%.2f%%\t%d\t%s\t%s\n", a.StudentID, a.AttendancePercent, a.RiskScore, a.RiskLevel, strings.Join(a.Reasons, "; "))
	}
	return w.Flush()
}
