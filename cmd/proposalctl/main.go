// README: Operational tool for driver proposals: set a proposal's status
// with the engine's retry policy, list proposals, or watch transitions live.
// Stands in for the driver app during testing and for manual repair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ridelink/internal/config"
	"ridelink/internal/retry"
	"ridelink/internal/schema"
	"ridelink/internal/store"
)

func main() {
	var (
		proposalID = flag.String("proposal", "", "proposal document id to update")
		status     = flag.String("status", "", "status to write (e.g. accepted, picked_up, rejected)")
		all        = flag.Bool("all", false, "apply -status to every proposal not already there")
		from       = flag.String("from", "", "with -all, only touch proposals currently in this status")
		list       = flag.Bool("list", false, "list proposals instead of updating")
		watch      = flag.Bool("watch", false, "follow proposal transitions until interrupted")
		limit      = flag.Int("limit", 50, "maximum proposals to list")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drivers, err := store.NewFirestore(ctx, cfg.DriverCredentials, "driver")
	if err != nil {
		log.Fatalf("driver store init: %v", err)
	}
	defer drivers.Close()

	switch {
	case *watch:
		watchProposals(ctx, drivers)
	case *list:
		listProposals(ctx, drivers, *limit)
	case *all && *status != "":
		updateAll(ctx, drivers, cfg, *status, *from)
	case *proposalID != "" && *status != "":
		if err := updateProposal(ctx, drivers, cfg, *proposalID, *status); err != nil {
			log.Fatalf("update %s: %v", *proposalID, err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func updateProposal(ctx context.Context, drivers store.Store, cfg config.Config, id, status string) error {
	policy := retry.Policy{
		Initial:  cfg.Retry.Initial,
		Cap:      cfg.Retry.Cap,
		Attempts: cfg.Retry.Attempts,
	}
	err := policy.Do(ctx, func() error {
		return drivers.Update(ctx, schema.ProposalsCollection, id, map[string]any{
			"status":    status,
			"updatedAt": store.ServerTimestamp,
		})
	})
	if err != nil {
		return err
	}
	fmt.Printf("proposal %s -> %s\n", id, status)
	return nil
}

// updateAll walks the whole proposal collection client-side; the status
// filter is applied here so unindexed historical statuses are still covered.
func updateAll(ctx context.Context, drivers store.Store, cfg config.Config, status, from string) {
	docs, err := drivers.Query(ctx, schema.ProposalsCollection, store.Query{})
	if err != nil {
		log.Fatalf("scan proposals: %v", err)
	}
	updated := 0
	for _, doc := range docs {
		current := schema.Fields(doc.Data).Status()
		if current == status {
			continue
		}
		if from != "" && current != from {
			continue
		}
		if err := updateProposal(ctx, drivers, cfg, doc.ID, status); err != nil {
			log.Printf("update %s: %v (continuing)", doc.ID, err)
			continue
		}
		updated++
	}
	fmt.Printf("updated %d of %d proposals\n", updated, len(docs))
}

func listProposals(ctx context.Context, drivers store.Store, limit int) {
	docs, err := drivers.Query(ctx, schema.ProposalsCollection, store.Query{})
	if err != nil {
		log.Fatalf("list proposals: %v", err)
	}
	for i, doc := range docs {
		if i >= limit {
			fmt.Printf("... and %d more\n", len(docs)-limit)
			break
		}
		data := schema.Fields(doc.Data)
		fmt.Printf("%s\tstatus=%s\trequest=%s\tdriver=%s\n",
			doc.ID,
			data.Status(),
			data.Str(schema.RequestIDAliases...),
			data.Str(schema.ProposalDriverAliases...))
	}
}

func watchProposals(ctx context.Context, drivers store.Store) {
	err := drivers.Subscribe(ctx, schema.ProposalsCollection, store.Query{}, func(c store.Change) {
		data := schema.Fields(c.Data)
		fmt.Printf("[%s] %s\tstatus=%s\trequest=%s\n",
			c.Kind, c.ID, data.Status(), data.Str(schema.RequestIDAliases...))
	})
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
}
