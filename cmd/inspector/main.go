// Command inspector prints the persisted trust graph: the ledger owner and
// its writers, the highest and lowest scores, the factory policy and the
// markets each creator has deployed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/config"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/repository"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
)

func main() {
	fs := flag.NewFlagSet("inspector", flag.ExitOnError)
	dsn := fs.String("dsn", "", "postgres DSN (defaults to database.dsn)")
	top := fs.Int("top", 10, "number of scores to show at each end")
	creator := fs.String("creator", "", "only list markets deployed by this creator")
	asJSON := fs.Bool("json", false, "dump the raw state as json")
	_ = fs.Parse(os.Args[1:])

	if err := run(*dsn, *top, *creator, *asJSON, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "inspector:", err)
		os.Exit(1)
	}
}

func run(dsn string, top int, creator string, asJSON bool, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("no database configured, pass -dsn or set POLYFACTORY_DATABASE_DSN")
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	store := repository.NewPostgresStateStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if creator != "" {
		if !common.IsHexAddress(creator) {
			return fmt.Errorf("creator %q is not an address", creator)
		}
		markets, err := store.MarketsByCreator(ctx, common.HexToAddress(creator).Hex(), 1000)
		if err != nil {
			return err
		}
		if asJSON {
			return json.NewEncoder(out).Encode(markets)
		}
		printMarkets(out, markets)
		return nil
	}

	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	printState(out, state, top)
	return nil
}

func printState(out io.Writer, state service.State, top int) {
	if state.Ledger == nil || state.Factory == nil {
		fmt.Fprintln(out, "no deployment persisted")
		return
	}
	l, f := state.Ledger, state.Factory

	fmt.Fprintln(out, "--- Ledger ---")
	fmt.Fprintf(out, "address  %s\nowner    %s\nbounds   [%d, %d]\n", l.Address.Hex(), l.Owner.Hex(), l.Bounds.Min, l.Bounds.Max)
	fmt.Fprintln(out, "writers:")
	for _, w := range l.Writers {
		marker := ""
		if w == f.Address {
			marker = " (factory)"
		}
		fmt.Fprintf(out, "  %s%s\n", w.Hex(), marker)
	}

	type entry struct {
		id    common.Address
		score int64
	}
	scores := make([]entry, 0, len(l.Scores))
	for id, s := range l.Scores {
		scores = append(scores, entry{id, s})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return strings.Compare(scores[i].id.Hex(), scores[j].id.Hex()) < 0
	})

	fmt.Fprintf(out, "\n--- Scores (%d identities, threshold %d) ---\n", len(scores), f.Threshold)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, e := range scores {
		if top > 0 && i >= top && i < len(scores)-top {
			if i == top {
				fmt.Fprintln(tw, "...\t\t")
			}
			continue
		}
		can := "no"
		if e.score >= f.Threshold || e.id == f.Owner {
			can = "yes"
		}
		fmt.Fprintf(tw, "%s\t%d\tcan_create=%s\n", e.id.Hex(), e.score, can)
	}
	tw.Flush()

	fmt.Fprintln(out, "\n--- Factory ---")
	fmt.Fprintf(out, "address   %s\nowner     %s\ntemplate  %s\nmarkets   %d (nonce %d)\n", f.Address.Hex(), f.Owner.Hex(), f.Template.Hex(), len(f.Markets), f.Nonce)
	fmt.Fprintln(out, "accepted tokens:")
	if len(f.AcceptedTokens) == 0 {
		fmt.Fprintln(out, "  any")
	}
	for _, t := range f.AcceptedTokens {
		fmt.Fprintf(out, "  %s\n", t.Hex())
	}

	fmt.Fprintln(out)
	printMarkets(out, state.Markets)
}

func printMarkets(out io.Writer, markets []market.Snapshot) {
	fmt.Fprintf(out, "--- Markets (%d) ---\n", len(markets))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATOR\tSTATE\tPOOL\tDELTA\tQUESTION")
	for _, m := range markets {
		pool := "0"
		if m.TotalPool != nil {
			pool = m.TotalPool.Dec()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+d\t%s\n", m.ID.Hex(), m.Creator.Hex(), m.State, pool, m.ReputationDelta, m.Question)
	}
	tw.Flush()
}
